package processing

import (
	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Pipeline runs the processing stages over normalized transactions in fixed
// order: categorization, duplicate detection, running balances, anomaly
// detection. Every stage mutates the slice in place.
type Pipeline struct {
	cfg    *common.Config
	logger *common.Logger

	categorizer  *Categorizer
	deduplicator *Deduplicator
	balances     *BalanceCalculator
	anomalies    *AnomalyDetector
}

// Result collects the pipeline outputs alongside the processed transactions.
type Result struct {
	Transactions     []*models.Transaction
	DateGaps         []models.DateGap
	AccountSummaries map[string]models.AccountSummary
	CategorySummary  map[string]int
}

// NewPipeline wires the processing stages from one config.
func NewPipeline(cfg *common.Config, logger *common.Logger) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		logger:       logger,
		categorizer:  NewCategorizer(cfg, logger),
		deduplicator: NewDeduplicator(logger),
		balances:     NewBalanceCalculator(cfg, logger),
		anomalies:    NewAnomalyDetector(cfg, logger),
	}
}

// Categorizer exposes the pipeline's categorizer for AI suggestion
// application.
func (p *Pipeline) Categorizer() *Categorizer {
	return p.categorizer
}

// Run executes all stages and returns the collected result. The input slice
// is mutated and shared with the result.
func (p *Pipeline) Run(txns []*models.Transaction) *Result {
	p.logger.Info().Int("transactions", len(txns)).Msg("Pipeline started")

	p.categorizer.Categorize(txns)
	p.deduplicator.FindDuplicates(txns)
	p.balances.CalculateBalances(txns)
	p.anomalies.DetectAnomalies(txns)

	result := &Result{
		Transactions:     txns,
		DateGaps:         p.anomalies.DateGaps(txns),
		AccountSummaries: p.balances.AccountSummaries(txns),
		CategorySummary:  p.categorizer.CategorySummary(txns),
	}

	p.logger.Info().
		Int("transactions", len(result.Transactions)).
		Int("date_gaps", len(result.DateGaps)).
		Int("accounts", len(result.AccountSummaries)).
		Msg("Pipeline complete")

	return result
}
