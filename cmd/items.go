package cmd

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/itembank"
	"github.com/abhisek/adaptiq/internal/ui/theme"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect the item bank",
}

var itemsValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate an item bank file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := bankPath(cmd, args)
		if err != nil {
			return err
		}
		version, entries, err := itembank.LoadFile(path)
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), theme.Fail.Render("invalid"), path)
			return err
		}

		groups := make(map[string]int)
		for _, e := range entries {
			groups[e.Subject+" / "+e.Grade]++
		}
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (format %s, %d items)\n", theme.Pass.Render("valid"), path, version, len(entries))
		for _, k := range keys {
			fmt.Fprintf(out, "  %-30s %5d\n", k, groups[k])
		}
		return nil
	},
}

var itemsInfoCmd = &cobra.Command{
	Use:   "info [path]",
	Short: "Show the test information curve of an item pool",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := bankPath(cmd, args)
		if err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")
		grade, _ := cmd.Flags().GetString("grade")

		bank := itembank.New()
		if err := bank.LoadFile(path); err != nil {
			return err
		}
		pool := bank.Pool(subject, grade)
		if len(pool) == 0 {
			return fmt.Errorf("no items for subject %q grade %q", subject, grade)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.Title.Render(fmt.Sprintf("Test information (%d items)", len(pool))))
		fmt.Fprintf(out, "%6s  %8s  %6s  %s\n", "Theta", "Info", "SE", "")
		fmt.Fprintln(out, strings.Repeat("─", 60))

		const barWidth = 36
		var peak float64
		curve := make([]float64, 0, 13)
		for theta := -3.0; theta <= 3.0+1e-9; theta += 0.5 {
			info := irt.TestInformation(theta, pool)
			curve = append(curve, info)
			peak = math.Max(peak, info)
		}
		for i, info := range curve {
			theta := -3.0 + 0.5*float64(i)
			se := math.Inf(1)
			if info > 0 {
				se = 1 / math.Sqrt(info)
			}
			n := 0
			if peak > 0 {
				n = int(barWidth*info/peak + 0.5)
			}
			fmt.Fprintf(out, "%+6.1f  %8.3f  %6.3f  %s\n", theta, info, se, strings.Repeat("█", n))
		}
		return nil
	},
}

func init() {
	itemsInfoCmd.Flags().String("subject", "", "Filter by subject")
	itemsInfoCmd.Flags().String("grade", "", "Filter by grade band")

	itemsCmd.AddCommand(itemsValidateCmd)
	itemsCmd.AddCommand(itemsInfoCmd)
}

// bankPath returns the positional path, else --items / config.
func bankPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.ItemBank, nil
}
