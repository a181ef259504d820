package processing

import (
	"context"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// CategorySuggester proposes a category for one transaction. Implemented by
// the Gemini client.
type CategorySuggester interface {
	SuggestCategory(ctx context.Context, txn *models.Transaction, categories map[string]models.Category) (*models.CategorySuggestion, error)
}

// AICategorizer fills in categories the deterministic chain could not
// settle: uncategorized transactions always go to the model, and
// low-confidence rule matches are revisited when the model is markedly more
// confident.
type AICategorizer struct {
	cfg         *common.Config
	logger      *common.Logger
	suggester   CategorySuggester
	categorizer *Categorizer

	// ValidationThreshold is the confidence below which a rule match is
	// revisited.
	ValidationThreshold float64

	// CorrectionThreshold is the model confidence required to replace an
	// existing low-confidence assignment.
	CorrectionThreshold float64
}

// NewAICategorizer creates an AI categorizer with default thresholds.
func NewAICategorizer(cfg *common.Config, suggester CategorySuggester, categorizer *Categorizer, logger *common.Logger) *AICategorizer {
	return &AICategorizer{
		cfg:                 cfg,
		logger:              logger,
		suggester:           suggester,
		categorizer:         categorizer,
		ValidationThreshold: 0.7,
		CorrectionThreshold: 0.9,
	}
}

// Enrich runs AI categorization over the candidates. Suggestion failures
// are logged per transaction, not fatal; the context cancels the whole run.
func (a *AICategorizer) Enrich(ctx context.Context, txns []*models.Transaction) (int, error) {
	applied := 0

	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if !a.isCandidate(txn) {
			continue
		}

		suggestion, err := a.suggester.SuggestCategory(ctx, txn, a.cfg.Categories)
		if err != nil {
			a.logger.Warn().
				Str("description", txn.Description).
				Err(err).
				Msg("AI suggestion failed")
			continue
		}

		// Replacing an existing assignment takes markedly higher model
		// confidence than filling an empty one.
		if !txn.IsUncategorized && suggestion.Confidence < a.CorrectionThreshold {
			a.logger.Debug().
				Str("description", txn.Description).
				Float64("confidence", suggestion.Confidence).
				Msg("AI suggestion below correction threshold, keeping existing category")
			continue
		}

		a.categorizer.ApplySuggestion(txn, *suggestion)
		applied++
	}

	a.logger.Info().Int("applied", applied).Msg("AI categorization complete")
	return applied, nil
}

func (a *AICategorizer) isCandidate(txn *models.Transaction) bool {
	if txn.IsUncategorized {
		return true
	}
	// Corrections and manual overrides are user decisions.
	switch txn.CategorySource {
	case models.SourceCorrection, models.SourceManual:
		return false
	}
	return txn.Confidence < a.ValidationThreshold
}
