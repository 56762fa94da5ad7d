package main

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/Classroom/internal/config"
	"github.com/dkeye/Classroom/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load users, sessions and administrators into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := config.LoadFixture(args[0])
		if err != nil {
			return err
		}
		sc := cfg.Store
		sc.Fixture = ""
		st, err := store.Open(cmd.Context(), sc)
		if err != nil {
			return err
		}
		defer st.Close()
		return store.Seed(cmd.Context(), st, f)
	},
}
