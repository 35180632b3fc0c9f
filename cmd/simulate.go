package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/adaptiq/internal/app"
	"github.com/abhisek/adaptiq/internal/mastery"
	"github.com/abhisek/adaptiq/internal/metrics"
	"github.com/abhisek/adaptiq/internal/simulate"
	"github.com/abhisek/adaptiq/internal/ui/components"
	"github.com/abhisek/adaptiq/internal/ui/theme"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Administer adaptive tests to synthetic examinees",
	Long: "Runs complete adaptive tests against the item bank for simulated examinees and reports " +
		"bias, RMSE, confidence-interval coverage, mean test length and item exposure.",
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.Int("examinees", 500, "Number of simulated examinees")
	f.Int("workers", 0, "Parallel examinees (0 = GOMAXPROCS)")
	f.Uint64("seed", 0, "Seed for the selector and response generation (overrides config)")
	f.Float64("theta", 0, "Give every examinee this true ability instead of drawing from N(0,1)")
	f.String("subject", "", "Subject to draw items from (empty = all)")
	f.String("grade", "", "Grade band to draw items from (empty = all)")
	f.Bool("persist", false, "Record session snapshots and exposure counts in the database")
	f.Int("top", 10, "Number of most-exposed items to show")
	f.Bool("json", false, "Print the result as JSON")
	f.Bool("records", false, "Include per-examinee records in JSON output")
	f.String("metrics-file", "", "Write engine metrics in Prometheus text format to this file")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetUint64("seed")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	var dbPath string
	if persist, _ := f.GetBool("persist"); persist {
		if dbPath, err = resolveDBPath(cfg); err != nil {
			return fmt.Errorf("resolve DB path: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Logger: logger, DBPath: dbPath})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	opts := simulate.Options{Seed: a.Seed()}
	opts.Examinees, _ = f.GetInt("examinees")
	opts.Workers, _ = f.GetInt("workers")
	opts.Subject, _ = f.GetString("subject")
	opts.Grade, _ = f.GetString("grade")
	if f.Changed("theta") {
		theta, _ := f.GetFloat64("theta")
		opts.FixedTheta = &theta
	}

	sim := simulate.New(a.Sessions, a.Bank, a.Tracker, logger.Named("simulate"))

	var res *simulate.Result
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	g.Go(func() error { return a.Run(runCtx) })
	g.Go(func() error {
		defer cancelRun()
		var err error
		res, err = sim.Run(gctx, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	if p, _ := f.GetString("metrics-file"); p != "" {
		if err := writeMetrics(p); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := f.GetBool("json"); asJSON {
		if keep, _ := f.GetBool("records"); !keep {
			res.Records = nil
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	top, _ := f.GetInt("top")
	renderSimulation(out, res, sim.ExposureRates(opts.Subject, opts.Grade), top, cfg.Selector.MaxExposureRate)
	return nil
}

func writeMetrics(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := metrics.WriteText(file, prometheus.DefaultGatherer); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func renderSimulation(w io.Writer, res *simulate.Result, rates []simulate.ItemExposure, top int, maxRate float64) {
	row := func(label, value string) string {
		return theme.Label.Render(label) + theme.Value.Render(value)
	}
	outcome := func(ok bool, value string) string {
		if ok {
			return theme.Pass.Render(value)
		}
		return theme.Fail.Render(value)
	}

	lines := []string{
		theme.Title.Render("Simulation"),
		row("Examinees", fmt.Sprintf("%d", len(res.Records))),
		row("Bias", fmt.Sprintf("%+.3f", res.Bias)),
		row("RMSE", fmt.Sprintf("%.3f", res.RMSE)),
		theme.Label.Render("CI coverage") + outcome(res.Coverage >= 0.90, fmt.Sprintf("%.1f%%", 100*res.Coverage)),
		row("Mean test length", fmt.Sprintf("%.1f items", res.MeanLength)),
		theme.Label.Render("Max exposure rate") + outcome(res.MaxExposureRate <= maxRate, fmt.Sprintf("%.3f", res.MaxExposureRate)),
		row("Elapsed", res.Elapsed.Round(time.Millisecond).String()),
	}

	reasons := make([]string, 0, len(res.StopReasons))
	for r := range res.StopReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	lines = append(lines, "", theme.Subtitle.Render("Stop reasons"))
	for _, r := range reasons {
		lines = append(lines, row(r, fmt.Sprintf("%d", res.StopReasons[r])))
	}

	if len(res.SkillClasses) > 0 {
		lines = append(lines, "", theme.Subtitle.Render("Skill diagnostics"))
		lines = append(lines, skillLines(res.SkillClasses)...)
	}

	if top > len(rates) {
		top = len(rates)
	}
	if top > 0 {
		lines = append(lines, "", theme.Subtitle.Render("Most exposed items"))
		for _, r := range rates[:top] {
			m := components.NewMeter(r.Item.ID, r.Rate, 60)
			m.Limit = maxRate
			lines = append(lines, m.View())
		}
	}

	fmt.Fprintln(w, theme.Card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	fmt.Fprintln(w, theme.Hint.Render(fmt.Sprintf("exposure cap %.2f", maxRate)))
}

var classOrder = []mastery.Classification{
	mastery.ClassStrength,
	mastery.ClassDeveloping,
	mastery.ClassWeakness,
	mastery.ClassNeedsAssessment,
}

// skillLines renders one row per skill with examinee counts per class.
func skillLines(classes map[string]map[mastery.Classification]int) []string {
	skills := make([]string, 0, len(classes))
	for skill := range classes {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		var parts []string
		for _, c := range classOrder {
			if n := classes[skill][c]; n > 0 {
				parts = append(parts, theme.ForClass(c).Render(fmt.Sprintf("%s %d", c, n)))
			}
		}
		out = append(out, theme.Label.Render(clip(skill, 21))+strings.Join(parts, "  "))
	}
	return out
}
