package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptiq/internal/session"
	"github.com/abhisek/adaptiq/internal/store"
	"github.com/abhisek/adaptiq/internal/ui/theme"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session snapshots, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		f := cmd.Flags()
		var opts store.ListOpts
		status, _ := f.GetString("status")
		opts.Status = session.Status(status)
		opts.TestTakerID, _ = f.GetString("taker")
		opts.Limit, _ = f.GetInt("limit")

		snaps, err := st.ListSessions(cmd.Context(), opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := f.GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snaps)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("No sessions recorded."))
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-16s  %-12s  %5s  %7s  %6s  %s\n",
			"Session", "Test taker", "Status", "Items", "Theta", "SE", "Reason")
		fmt.Fprintln(out, strings.Repeat("─", 120))
		for _, s := range snaps {
			theta, se := s.Theta, s.StandardError
			if s.FinalTheta != nil {
				theta, se = *s.FinalTheta, s.FinalSE
			}
			fmt.Fprintf(out, "%-36s  %-16s  %-12s  %5d  %+7.3f  %6s  %s\n",
				s.SessionID, clip(s.TestTakerID, 16), s.Status, s.ItemCount, theta, formatSE(se), s.StopReason)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		row := func(label, value string) string {
			return theme.Label.Render(label) + theme.Value.Render(value)
		}
		lines := []string{
			theme.Title.Render("Session " + s.SessionID),
			row("Test taker", s.TestTakerID),
			row("Subject / grade", s.Subject+" / "+s.Grade),
			row("Status", string(s.Status)),
			row("Stop reason", s.StopReason),
			row("Items", fmt.Sprintf("%d (%.1f%% correct)", s.ItemCount, s.PercentCorrect)),
			row("Running theta", fmt.Sprintf("%+.3f (SE %s)", s.Theta, formatSE(s.StandardError))),
		}
		if s.FinalTheta != nil {
			lines = append(lines, row("Final theta", fmt.Sprintf("%+.3f (SE %s)", *s.FinalTheta, formatSE(s.FinalSE))))
		}
		lines = append(lines,
			row("Started", s.StartedAt.Local().Format(time.RFC3339)),
			row("Duration", (time.Duration(s.DurationSecs)*time.Second).String()),
		)
		fmt.Fprintln(cmd.OutOrStdout(), theme.Card.Render(strings.Join(lines, "\n")))
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished session snapshots older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		age, _ := cmd.Flags().GetDuration("older-than")
		n, err := st.PruneSessions(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d sessions.\n", n)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("status", "", "Filter by status: in_progress, completed, expired")
	sessionsListCmd.Flags().String("taker", "", "Filter by test-taker id")
	sessionsListCmd.Flags().Int("limit", 50, "Maximum sessions to list (0 = all)")
	sessionsListCmd.Flags().Bool("json", false, "Print snapshots as JSON")
	sessionsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age of finished sessions to delete")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func formatSE(se *float64) string {
	if se == nil {
		return "∞"
	}
	return fmt.Sprintf("%.3f", *se)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
