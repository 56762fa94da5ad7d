package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

const callerKey = "caller"

// IdentityMiddleware resolves the caller from a token first and from the
// cookie session second. Anonymous requests pass through without a caller.
func IdentityMiddleware(p core.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			if u, err := p.Authenticate(c.Request); err == nil {
				c.Set(callerKey, u)
				c.Next()
				return
			}
		}
		s := sessions.Default(c)
		if uid, ok := s.Get("uid").(string); ok && uid != "" {
			name, _ := s.Get("name").(string)
			if u, err := domain.NewUser(domain.UserID(uid), name); err == nil {
				c.Set(callerKey, u)
			}
		}
		c.Next()
	}
}

func callerOf(c *gin.Context) *domain.User {
	if v, ok := c.Get(callerKey); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if callerOf(c) == nil {
			writeError(c, domain.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

// loginHandler stores a token-verified identity in the cookie session, so
// browser websocket connects need no token afterwards.
func loginHandler(p core.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			writeError(c, domain.ErrUnauthenticated)
			return
		}
		u, err := p.Authenticate(c.Request)
		if err != nil {
			writeError(c, err)
			return
		}
		s := sessions.Default(c)
		s.Set("uid", string(u.ID))
		s.Set("name", u.Username)
		if err := s.Save(); err != nil {
			writeError(c, err)
			return
		}
		log.Info().Str("module", "adapters.http").Str("uid", string(u.ID)).Msg("cookie session opened")
		c.JSON(http.StatusOK, gin.H{"user": u})
	}
}

func logoutHandler(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	if err := s.Save(); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
