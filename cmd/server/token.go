package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Classroom/internal/adapters/auth"
	"github.com/dkeye/Classroom/internal/domain"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [name]",
	Short: "Sign a development token with auth.jwt_secret",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		tok, err := auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(domain.UserID(args[0]), name, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}
