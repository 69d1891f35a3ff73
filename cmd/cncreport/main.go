package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwg-inc/cncreport/internal/config"
	"github.com/dwg-inc/cncreport/internal/database"
	"github.com/dwg-inc/cncreport/internal/period"
	"github.com/dwg-inc/cncreport/internal/pipeline"
	"github.com/dwg-inc/cncreport/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cncreport",
	Short:   "Weekly analytics reports for Cook&Chef",
	Long:    "cncreport pulls GA4 metrics and article metadata for cooknchefnews.com and turns them into weekly performance reports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(weeksCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cncreport", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/cncreport/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the GA4 property, credentials file and site passphrase.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show report archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Archive: %s\n\n", db.Path())
		fmt.Printf("  Reports: %d\n", stats.Reports)
		fmt.Printf("  Pipeline runs: %d\n", stats.Runs)
		fmt.Printf("  Failed page fetches: %d\n", stats.FailedPages)
		if stats.LatestPeriod != "" {
			fmt.Printf("  Latest period: %s\n", stats.LatestPeriod)
		}
		return nil
	},
}

var weeksCmd = &cobra.Command{
	Use:   "weeks",
	Short: "List the selectable report weeks",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reports, err := db.GetAllReports()
		if err != nil {
			return err
		}
		archived := make(map[string]bool, len(reports))
		for _, r := range reports {
			archived[r.PeriodID] = true
		}

		for i, w := range period.LastN(time.Now(), cfg.Report.TrendWeeks) {
			mark := " "
			if archived[w.ID()] {
				mark = "*"
			}
			fmt.Printf("  %2d %s %-8s %s\n", i+1, mark, w.Label(), w.DisplayRange())
		}
		fmt.Println("\n  * = report archived. Generate one with: cncreport report --week N")
		return nil
	},
}

var reportWeek string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run the report pipeline for a week",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		week, err := resolveWeek(reportWeek)
		if err != nil {
			return err
		}

		fmt.Printf("Generating report for %s (%s)\n", week.Label(), week.DisplayRange())

		pipe := pipeline.New(cfg, db)
		result := pipe.Run(context.Background(), week)

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if err := result.Err(); err != nil {
			return err
		}

		fmt.Println("\nReport complete! Run 'cncreport serve' to view it.")
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export [period]",
	Short: "Write an archived report's markdown to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		periodID := ""
		if len(args) > 0 {
			periodID = args[0]
		} else {
			stats, err := db.GetStats()
			if err != nil {
				return err
			}
			if stats.LatestPeriod == "" {
				return fmt.Errorf("no archived reports; run 'cncreport report' first")
			}
			periodID = stats.LatestPeriod
		}

		rep, err := db.GetReport(periodID)
		if err != nil {
			return err
		}
		if rep == nil {
			return fmt.Errorf("no archived report for %s", periodID)
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("cncreport-%s.md", periodID)
		}
		if err := os.WriteFile(out, []byte(rep.BodyMarkdown), 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}

		fmt.Printf("Exported %s (%s) to %s\n", rep.WeekLabel, rep.DateRange, out)
		return nil
	},
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		pipe := pipeline.New(cfg, db)
		fmt.Printf("Starting dashboard at http://localhost:%d\n", cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cfg, pipe)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportWeek, "week", "latest", "Week to report on: 'latest', a list position from 'cncreport weeks', or a start date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default cncreport-<period>.md)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
}

// resolveWeek maps the --week flag to a concrete week: "latest", a
// 1-based position in the weeks listing, or a period start date.
func resolveWeek(sel string) (period.Week, error) {
	weeks := period.LastN(time.Now(), cfg.Report.TrendWeeks)

	switch {
	case sel == "" || sel == "latest":
		return weeks[0], nil
	default:
		if n, err := strconv.Atoi(sel); err == nil {
			if n < 1 || n > len(weeks) {
				return period.Week{}, fmt.Errorf("week position %d out of range 1..%d", n, len(weeks))
			}
			return weeks[n-1], nil
		}
		if w, ok := period.Find(weeks, sel); ok {
			return w, nil
		}
		return period.Week{}, fmt.Errorf("unknown week %q; see 'cncreport weeks'", sel)
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "cncreport.db")
	return database.Open(dbPath)
}
