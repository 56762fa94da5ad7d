package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkeye/Classroom/internal/domain"
	"github.com/dkeye/Classroom/internal/store"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance <regular|instant> <session>",
	Short: "Print the attendance of a session as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseSessionKind(args[0])
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

		recs, err := st.ListAttendance(cmd.Context(), domain.SessionKey{Kind: kind, ID: args[1]})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}
