package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bmorton/finledger/internal/clients/gemini"
	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/output"
	"github.com/bmorton/finledger/internal/parsers"
	"github.com/bmorton/finledger/internal/processing"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file (defaults apply when empty)")
	inputDir := flag.String("input-dir", "", "directory of bank statement files to process")
	outputDir := flag.String("output", "output", "directory for generated reports")
	correctionsPath := flag.String("corrections", "", "reviewed CSV to import category corrections from")
	useAI := flag.Bool("ai", false, "categorize remaining transactions with Gemini")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(common.GetFullVersion())
		return
	}

	if *inputDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: finledger -input-dir <dir> [-config <file>] [-output <dir>] [-corrections <file>] [-ai]")
		os.Exit(2)
	}

	if err := run(*configPath, *inputDir, *outputDir, *correctionsPath, *useAI); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, inputDir, outputDir, correctionsPath string, useAI bool) error {
	bootLogger := common.NewLogger("info")

	cfg, err := common.LoadConfig(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(cfg.Logging)
	common.PrintBanner(cfg, logger)

	// Parse statement files.
	detector := parsers.NewDetector(logger)
	byFile, parseErrors, err := detector.ParseDirectory(inputDir)
	if err != nil {
		return err
	}
	for _, msg := range parseErrors {
		logger.Warn().Str("error", msg).Msg("File skipped")
	}
	if len(byFile) == 0 {
		return fmt.Errorf("no parseable statement files in %s", inputDir)
	}

	// Normalize into transactions with account attribution.
	normalizer := processing.NewNormalizer(cfg, logger)
	txns := normalizer.NormalizeAll(byFile)
	if len(txns) == 0 {
		return fmt.Errorf("no transactions found in %s", inputDir)
	}

	// Merge reviewed corrections before categorization runs.
	if correctionsPath != "" {
		importer := processing.NewCorrectionImporter(cfg, logger)
		imported, err := importer.ImportFile(correctionsPath)
		if err != nil {
			return fmt.Errorf("failed to import corrections: %w", err)
		}
		importer.MergeInto(cfg, imported)
	}

	pipeline := processing.NewPipeline(cfg, logger)
	result := pipeline.Run(txns)

	if useAI {
		if err := enrichWithAI(cfg, logger, pipeline, result); err != nil {
			return err
		}
	}

	// Export reports.
	exporter := output.NewCSVExporter(cfg, logger)
	paths, err := exporter.Export(outputDir, result.Transactions, result.DateGaps, result.AccountSummaries)
	if err != nil {
		return err
	}

	if format := strings.ToLower(cfg.Output.Format); format == "excel" || format == "both" {
		workbook := output.NewExcelWriter(cfg, logger)
		if path, err := workbook.Write(outputDir, result.Transactions, result.DateGaps, result.AccountSummaries); err != nil {
			logger.Warn().Err(err).Msg("Excel workbook failed")
		} else {
			paths = append(paths, path)
		}
	}

	charts := output.NewChartWriter(cfg, logger)
	if path, err := charts.WriteCategoryChart(outputDir, result.Transactions); err != nil {
		logger.Warn().Err(err).Msg("Category chart failed")
	} else if path != "" {
		paths = append(paths, path)
	}
	if path, err := charts.WriteBalanceChart(outputDir, result.Transactions); err != nil {
		logger.Warn().Err(err).Msg("Balance chart failed")
	} else if path != "" {
		paths = append(paths, path)
	}

	logger.Info().
		Int("transactions", len(result.Transactions)).
		Int("files", len(paths)).
		Str("output", outputDir).
		Msg("Run complete")

	return nil
}

// enrichWithAI fills remaining category gaps via Gemini, then recomputes the
// category summary so reports reflect the new assignments.
func enrichWithAI(cfg *common.Config, logger *common.Logger, pipeline *processing.Pipeline, result *processing.Result) error {
	apiKey := cfg.AI.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("-ai requires an API key in config [ai] or GEMINI_API_KEY")
	}

	ctx := context.Background()

	opts := []gemini.ClientOption{gemini.WithLogger(logger)}
	if cfg.AI.Model != "" {
		opts = append(opts, gemini.WithModel(cfg.AI.Model))
	}
	if cfg.AI.RateLimit > 0 {
		opts = append(opts, gemini.WithRateLimit(cfg.AI.RateLimit))
	}

	client, err := gemini.NewClient(ctx, apiKey, opts...)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	enricher := processing.NewAICategorizer(cfg, client, pipeline.Categorizer(), logger)
	applied, err := enricher.Enrich(ctx, result.Transactions)
	if err != nil {
		return fmt.Errorf("AI categorization failed: %w", err)
	}
	if applied > 0 {
		result.CategorySummary = pipeline.Categorizer().CategorySummary(result.Transactions)
	}

	return nil
}
