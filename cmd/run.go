package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/pkg/pipeline"
	"github.com/xhad/neardup/pkg/report"
	"github.com/xhad/neardup/pkg/similarity"
)

// NewRunCmd creates the batch run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a URL list or a crawled site",
		Long: `Run fetches every URL, decides for each document whether it is a
near-duplicate of an earlier one and classifies the unique documents.

Examples:
  # Process a URL list and write a CSV and a markdown report
  neardup run --urls urls.txt --out results.csv --report summary.md

  # Crawl a site and store the results in postgres
  neardup run --crawl https://example.com --store`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().StringP("urls", "u", "", "File with one URL per line")
	cmd.Flags().String("crawl", "", "Seed URL to crawl on the same host")
	cmd.Flags().StringP("out", "o", "", "Results CSV path (default from config)")
	cmd.Flags().Bool("append", false, "Append to an existing results CSV")
	cmd.Flags().String("report", "", "Write a markdown summary report")
	cmd.Flags().String("logs", "", "Export the similarity log as JSON")
	cmd.Flags().Bool("store", false, "Store results in the configured postgres database")
	cmd.Flags().Int("concurrency", 0, "Concurrent fetches (default from config)")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")

	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	urlsPath, _ := cmd.Flags().GetString("urls")
	seed, _ := cmd.Flags().GetString("crawl")
	if urlsPath == "" && seed == "" {
		return errors.New("one of --urls or --crawl is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		cfg.Output.ResultsPath = v
	}
	if v, _ := cmd.Flags().GetBool("append"); v {
		cfg.Output.Append = true
	}
	if v, _ := cmd.Flags().GetString("report"); v != "" {
		cfg.Output.ReportPath = v
	}
	if v, _ := cmd.Flags().GetString("logs"); v != "" {
		cfg.Output.LogsPath = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Scraper.Concurrency = v
	}
	useStore, _ := cmd.Flags().GetBool("store")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var results []models.Result
	var runErr error

	if urlsPath != "" {
		urls, err := report.ReadURLFile(urlsPath)
		if err != nil {
			return err
		}
		color.New(color.FgBlue).Fprintf(out, "Processing %d URLs\n", len(urls))

		progress := newRunProgress(out, len(urls), "Processing URLs", noProgress)
		results, runErr = c.pipeline.Run(ctx, urls, progress.update)
		progress.finish()
	}

	if seed != "" && runErr == nil {
		spinner := newSpinner(out, "Crawling "+seed, noProgress)
		docs, err := c.scraper.Crawl(ctx, seed)
		spinner.Finish()
		if err != nil {
			return fmt.Errorf("failed to crawl %s: %w", seed, err)
		}
		color.New(color.FgGreen).Fprintf(out, "✓ Crawled %d pages\n", len(docs))

		progress := newRunProgress(out, len(docs), "Processing pages", noProgress)
		crawled, err := c.pipeline.RunDocuments(ctx, docs, progress.update)
		progress.finish()
		results = append(results, crawled...)
		runErr = err
	}

	// Partial results from an interrupted run are still written out.
	if err := writeOutputs(cfg.Output.ResultsPath, cfg.Output.Append, cfg.Output.ReportPath, cfg.Output.LogsPath, c, results); err != nil {
		return err
	}

	if useStore {
		s, err := openStore(ctx, cfg, c.engine, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Store(ctx, results); err != nil {
			return fmt.Errorf("failed to store results: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "✓ Stored %d results\n", len(results))
	}

	printStats(out, c)

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}

func writeOutputs(resultsPath string, appendCSV bool, reportPath, logsPath string, c *components, results []models.Result) error {
	if err := report.WriteCSVFile(resultsPath, results, appendCSV); err != nil {
		return err
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("failed to create report %s: %w", reportPath, err)
		}
		err = report.WriteMarkdown(f, report.Summary{
			RunID:        c.pipeline.RunID(),
			Results:      results,
			Stats:        c.engine.Stats(),
			Distribution: c.engine.Analyze(),
		})
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("failed to write report %s: %w", reportPath, err)
		}
	}

	if logsPath != "" {
		if err := c.engine.ExportLogs(logsPath); err != nil {
			return err
		}
	}

	return nil
}

func printStats(out io.Writer, c *components) {
	stats := c.engine.Stats()

	color.New(color.FgCyan).Fprintf(out, "\nProcessed %d documents\n", stats.TotalProcessed)
	fmt.Fprintf(out, "  unique:     %d\n", stats.UniqueCount)
	fmt.Fprintf(out, "  duplicates: %d (%.1f%%)\n", stats.TotalDuplicates, stats.DuplicateRate*100)
	for _, method := range []similarity.Method{similarity.MethodEmbedding, similarity.MethodMinHash, similarity.MethodSimHash} {
		if n := stats.DetectionMethods[method]; n > 0 {
			fmt.Fprintf(out, "    %-10s %d\n", method, n)
		}
	}
	if stats.EmbeddingEnabled {
		fmt.Fprintf(out, "  embeddings: %d\n", stats.EmbeddingCount)
	}
}

type runProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newRunProgress(out io.Writer, total int, description string, disabled bool) *runProgress {
	p := &runProgress{out: out}
	if !disabled {
		p.bar = getProgressBar(out, total, description)
	}
	return p
}

func (p *runProgress) update(update pipeline.Progress) {
	if update.Result == nil {
		return
	}
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	printResult(p.out, update.Index+1, update.Total, *update.Result)
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *runProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(p.out)
	}
}

func printResult(out io.Writer, n, total int, r models.Result) {
	line := fmt.Sprintf("[%d/%d] %s: %s\n", n, total, r.URL, pipeline.Describe(r))
	switch {
	case !r.Succeeded():
		color.New(color.FgRed).Fprint(out, line)
	case r.IsDuplicate:
		color.New(color.FgYellow).Fprint(out, line)
	default:
		color.New(color.FgGreen).Fprint(out, line)
	}
}

func getProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func newSpinner(out io.Writer, description string, disabled bool) *progressbar.ProgressBar {
	if disabled {
		return progressbar.DefaultSilent(-1)
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
