package http

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dkeye/Classroom/internal/app/lifecycle"
	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds "roomname" (a name whose slug is a usable room
// segment) and "segment" (already a valid segment) to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
			return domain.ValidSegment(domain.Slugify(fl.Field().String()))
		})
		_ = v.RegisterValidation("segment", func(fl validator.FieldLevel) bool {
			return domain.ValidSegment(fl.Field().String())
		})
	})
}

type CreateBreakoutRequest struct {
	Name string `json:"name" binding:"required,max=64,roomname"`
}

type AssignRequest struct {
	UserID string `json:"user_id" binding:"required,max=64"`
}

type CreateInstantRequest struct {
	ID    string `json:"id" binding:"omitempty,segment"`
	Title string `json:"title" binding:"max=128"`
}

type adminHandlers struct {
	orch      *orch.Orchestrator
	lifecycle *lifecycle.Manager
}

func sessionKeyOf(c *gin.Context) (domain.SessionKey, error) {
	kind, err := domain.ParseSessionKind(c.Param("kind"))
	if err != nil {
		return domain.SessionKey{}, err
	}
	id := c.Param("session")
	if !domain.ValidSegment(id) {
		return domain.SessionKey{}, errors.Wrapf(domain.ErrInvalid, "session id %q", id)
	}
	return domain.SessionKey{Kind: kind, ID: id}, nil
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *adminHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *adminHandlers) createBreakout(c *gin.Context) {
	key, err := sessionKeyOf(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req CreateBreakoutRequest
	if !bind(c, &req) {
		return
	}
	b, err := h.lifecycle.CreateBreakout(c.Request.Context(), callerOf(c), key, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"breakout": b, "room": b.Room()})
}

func (h *adminHandlers) closeBreakout(c *gin.Context) {
	key, err := sessionKeyOf(c)
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := h.lifecycle.CloseBreakout(c.Request.Context(), callerOf(c), key, c.Param("breakout"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakout": b})
}

func (h *adminHandlers) assignParticipant(c *gin.Context) {
	key, err := sessionKeyOf(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req AssignRequest
	if !bind(c, &req) {
		return
	}
	a, err := h.lifecycle.AssignParticipant(c.Request.Context(), callerOf(c), key, c.Param("breakout"), domain.UserID(req.UserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": a})
}

func (h *adminHandlers) startRecording(c *gin.Context) {
	key, err := sessionKeyOf(c)
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := h.lifecycle.StartRecording(c.Request.Context(), callerOf(c), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": rec})
}

func (h *adminHandlers) stopRecording(c *gin.Context) {
	rec, err := h.lifecycle.StopRecording(c.Request.Context(), callerOf(c), c.Param("recording"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": rec})
}

func (h *adminHandlers) listAttendance(c *gin.Context) {
	key, err := sessionKeyOf(c)
	if err != nil {
		writeError(c, err)
		return
	}
	recs, err := h.lifecycle.ListAttendance(c.Request.Context(), callerOf(c), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": recs})
}

func (h *adminHandlers) createInstant(c *gin.Context) {
	var req CreateInstantRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	sess, err := h.lifecycle.CreateInstant(c.Request.Context(), callerOf(c), req.ID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess, "room": sess.MainRoom()})
}
