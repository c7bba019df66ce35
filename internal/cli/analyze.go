package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/normalizer"
	"github.com/causewaylabs/causeway/pkg/pipeline"
	"github.com/causewaylabs/causeway/pkg/query"
	"github.com/causewaylabs/causeway/pkg/storage"
)

var (
	analyzeInput   string
	analyzeEventID string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a batch of delivery records",
	Long: `Reads newline-delimited JSON raw records from a file (or stdin
with -), runs the full analysis pipeline over them, and prints a
summary of correlations, root causes and recommendations.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeInput, "input", "i", "-", "raw records file, newline-delimited JSON (- for stdin)")
	analyzeCmd.Flags().StringVar(&analyzeEventID, "event", "", "print the full failure report for this event after analysis")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	ctx := cmd.Context()
	defer store.Close(ctx)

	pipe, err := pipeline.New(logger, cfg, store)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	records, skipped, err := readRecords(analyzeInput)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no raw records in %s", analyzeInput)
	}
	if skipped > 0 {
		logger.Warn("Skipped undecodable input lines", zap.Int("lines", skipped))
	}

	total := pipeline.BatchResult{}
	batchSize := cfg.Pipeline.BatchSize
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		res, err := pipe.ProcessBatch(ctx, records[start:end])
		if err != nil {
			return fmt.Errorf("processing batch: %w", err)
		}
		total.Merge(*res)
	}

	printSummary(cmd, &total)

	svc, err := query.NewService(logger, store)
	if err != nil {
		return fmt.Errorf("building query service: %w", err)
	}
	if err := printBreakdown(ctx, cmd, svc); err != nil {
		return err
	}
	if analyzeEventID != "" {
		return printReport(ctx, cmd, svc, analyzeEventID)
	}
	return nil
}

// readRecords loads newline-delimited JSON raw records, counting
// lines that do not decode instead of failing the whole run
func readRecords(path string) ([]*normalizer.RawRecord, int, error) {
	var in *os.File
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var records []*normalizer.RawRecord
	skipped := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := normalizer.ParseRawRecord(line)
		if err != nil {
			skipped++
			continue
		}
		if rec.IngestedAt.IsZero() {
			rec.IngestedAt = time.Now().UTC()
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading input: %w", err)
	}
	return records, skipped, nil
}

func printSummary(cmd *cobra.Command, res *pipeline.BatchResult) {
	cmd.Println("Analysis summary")
	cmd.Printf("  records in:      %d\n", res.RecordsIn)
	cmd.Printf("  normalized:      %d\n", res.Normalized)
	cmd.Printf("  quarantined:     %d\n", res.Quarantined)
	cmd.Printf("  correlations:    %d\n", res.Correlations)
	cmd.Printf("  analyses:        %d\n", res.Analyses)
	cmd.Printf("  inconclusive:    %d\n", res.Inconclusive)
	cmd.Printf("  recommendations: %d\n", res.Recommendations)
}

func printBreakdown(ctx context.Context, cmd *cobra.Command, svc *query.Service) error {
	breakdown, err := svc.CategoryBreakdown(ctx, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("computing category breakdown: %w", err)
	}
	if len(breakdown) == 0 {
		return nil
	}
	cmd.Println("Root causes by category")
	for category, count := range breakdown {
		name := string(category)
		if name == "" {
			name = "(inconclusive)"
		}
		cmd.Printf("  %-18s %d\n", name, count)
	}
	return nil
}

func printReport(ctx context.Context, cmd *cobra.Command, svc *query.Service, eventID string) error {
	report, err := svc.ReportForEvent(ctx, eventID)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("no such event: %s", eventID)
		}
		return fmt.Errorf("building failure report: %w", err)
	}

	cmd.Printf("Failure report for %s (%s)\n", report.Subject.ID, report.Subject.Type)
	cmd.Printf("  correlations: %d\n", len(report.Correlations))
	if report.Analysis == nil {
		cmd.Println("  no analysis recorded")
		return nil
	}
	if report.Analysis.PrimaryCause != nil {
		cmd.Printf("  primary cause: %s (score %.2f, confidence %.2f)\n",
			report.Analysis.PrimaryCause.Category,
			report.Analysis.PrimaryCause.Score,
			report.Analysis.PrimaryCause.Confidence)
	} else {
		cmd.Println("  primary cause: inconclusive")
	}
	for _, cause := range report.Analysis.ContributingCauses {
		cmd.Printf("  contributing:  %s (score %.2f)\n", cause.Category, cause.Score)
	}
	for _, rec := range report.Recommendations {
		cmd.Printf("  recommend [%.2f]: %s\n", rec.Priority, rec.Title)
	}
	return nil
}
