package processing

import (
	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Categorizer resolves a category per transaction through a strict
// precedence chain:
//
//  1. imported corrections (matched by fingerprint, user-reviewed)
//  2. manual overrides (exact date + amount, optional keywords)
//  3. category rules (priority order, stable ties)
//  4. otherwise the transaction stays uncategorized
type Categorizer struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewCategorizer creates a categorizer.
func NewCategorizer(cfg *common.Config, logger *common.Logger) *Categorizer {
	return &Categorizer{cfg: cfg, logger: logger}
}

// Categorize assigns categories to all transactions in place and returns
// the same slice.
func (c *Categorizer) Categorize(txns []*models.Transaction) []*models.Transaction {
	categorized, uncategorized := 0, 0

	for _, txn := range txns {
		c.categorizeOne(txn)
		if txn.IsUncategorized {
			uncategorized++
		} else {
			categorized++
		}
	}

	c.logger.Info().
		Int("categorized", categorized).
		Int("uncategorized", uncategorized).
		Msg("Categorization complete")

	return txns
}

func (c *Categorizer) categorizeOne(txn *models.Transaction) {
	if c.applyCorrection(txn) {
		return
	}
	if c.applyOverride(txn) {
		return
	}
	if c.applyRule(txn) {
		return
	}
	// No match: the transaction keeps its current (default) state.
}

// applyCorrection applies an imported correction matched by fingerprint.
// A correction referencing an unknown category, or a subcategory that does
// not belong to the resolved parent, is skipped with a warning and the
// transaction falls through to the next source.
func (c *Categorizer) applyCorrection(txn *models.Transaction) bool {
	fingerprint := txn.Fingerprint()
	correction := c.cfg.GetMatchingCorrection(fingerprint)
	if correction == nil {
		return false
	}

	category, ok := c.cfg.Categories[correction.CategoryID]
	if !ok {
		c.logger.Warn().
			Str("fingerprint", fingerprint).
			Str("category", correction.CategoryID).
			Msg("Correction references unknown category, skipping")
		return false
	}

	categoryID := correction.CategoryID
	subcategoryID := correction.SubcategoryID

	// The correction may name a subcategory as the main category; promote
	// its parent. When the parent itself is unknown, keep the raw target.
	if category.IsSubcategory() {
		subcategoryID = correction.CategoryID
		if _, ok := c.cfg.Categories[category.ParentID]; ok {
			categoryID = category.ParentID
		} else {
			c.logger.Warn().
				Str("fingerprint", fingerprint).
				Str("parent", category.ParentID).
				Msg("Correction parent category not found, using target as main category")
		}
	}

	if subcategoryID != "" && subcategoryID != correction.CategoryID {
		subcat, ok := c.cfg.Categories[subcategoryID]
		switch {
		case !ok:
			c.logger.Warn().
				Str("fingerprint", fingerprint).
				Str("subcategory", subcategoryID).
				Msg("Correction subcategory not found, skipping correction")
			return false
		case !subcat.IsSubcategory():
			c.logger.Warn().
				Str("fingerprint", fingerprint).
				Str("subcategory", subcategoryID).
				Msg("Correction subcategory is a top-level category, skipping correction")
			return false
		case subcat.ParentID != categoryID:
			c.logger.Warn().
				Str("fingerprint", fingerprint).
				Str("subcategory", subcategoryID).
				Str("parent", subcat.ParentID).
				Msg("Correction subcategory belongs to a different parent, skipping correction")
			return false
		}
	}

	txn.AssignCategory(categoryID, models.SourceCorrection, models.CategoryAssignment{
		SubcategoryID:     subcategoryID,
		Confidence:        1.0,
		ConfidenceFactors: []string{"Imported from reviewed output"},
	})
	return true
}

// applyOverride applies the first manual override matching on exact date,
// exact amount and optional keywords. Overrides referencing an unknown
// category are skipped; an unknown subcategory is dropped but the override
// still applies.
func (c *Categorizer) applyOverride(txn *models.Transaction) bool {
	dateStr := models.ISODate(txn.Date)

	for _, override := range c.cfg.ManualOverrides {
		if !override.Matches(dateStr, txn.Amount, txn.Description) {
			continue
		}

		if _, ok := c.cfg.Categories[override.CategoryID]; !ok {
			c.logger.Warn().
				Str("date", override.DateStr).
				Str("category", override.CategoryID).
				Msg("Override references unknown category, skipping")
			continue
		}

		categoryID, subcategoryID := c.resolveParent(override.CategoryID, override.SubcategoryID)
		if subcategoryID != "" {
			if _, ok := c.cfg.Categories[subcategoryID]; !ok {
				c.logger.Warn().
					Str("date", override.DateStr).
					Str("subcategory", subcategoryID).
					Msg("Override subcategory not found, ignoring subcategory")
				subcategoryID = ""
			}
		}

		txn.AssignCategory(categoryID, models.SourceManual, models.CategoryAssignment{
			SubcategoryID:     subcategoryID,
			Confidence:        1.0,
			ConfidenceFactors: []string{"Manual override"},
		})
		return true
	}
	return false
}

// applyRule evaluates rules in descending priority order and applies the
// first match, carrying the match's confidence and factors.
func (c *Categorizer) applyRule(txn *models.Transaction) bool {
	for i := range c.cfg.CategoryRules {
		rule := &c.cfg.CategoryRules[i]
		result := rule.Match(txn.Description, txn.Amount, txn.AccountID)
		if result == nil {
			continue
		}

		categoryID, subcategoryID := c.resolveParent(rule.CategoryID, rule.SubcategoryID)

		txn.AssignCategory(categoryID, models.SourceRule, models.CategoryAssignment{
			SubcategoryID:     subcategoryID,
			RuleID:            rule.ID,
			Confidence:        result.Confidence,
			ConfidenceFactors: result.Factors,
			MatchedPattern:    result.MatchedValue,
		})
		return true
	}
	return false
}

// resolveParent promotes a subcategory target to (parent, target). When the
// target has no parent, or the parent cannot be resolved, the target stays
// the main category.
func (c *Categorizer) resolveParent(targetID, subcategoryID string) (string, string) {
	category, ok := c.cfg.Categories[targetID]
	if !ok || !category.IsSubcategory() {
		return targetID, subcategoryID
	}
	if _, ok := c.cfg.Categories[category.ParentID]; !ok {
		return targetID, subcategoryID
	}
	return category.ParentID, targetID
}

// ApplySuggestion assigns an AI-proposed category through the same
// assignment path as every other source. Confidence is clamped to [0, 1]
// here, before assignment; the suggestion source is tagged ai_correction
// whenever it revises an existing assignment, ai when it fills an empty
// one.
func (c *Categorizer) ApplySuggestion(txn *models.Transaction, suggestion models.CategorySuggestion) {
	if _, ok := c.cfg.Categories[suggestion.CategoryID]; !ok {
		c.logger.Warn().
			Str("category", suggestion.CategoryID).
			Msg("AI suggestion references unknown category, ignoring")
		return
	}

	confidence := suggestion.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	source := models.SourceAI
	if !txn.IsUncategorized {
		source = models.SourceAICorrection
	}

	categoryID, subcategoryID := c.resolveParent(suggestion.CategoryID, "")
	factors := []string{"AI categorization"}
	if suggestion.Reasoning != "" {
		factors = append(factors, suggestion.Reasoning)
	}

	txn.AssignCategory(categoryID, source, models.CategoryAssignment{
		SubcategoryID:     subcategoryID,
		Confidence:        confidence,
		ConfidenceFactors: factors,
	})
}

// CategorySummary counts transactions per category; uncategorized records
// are reported under "Uncategorized".
func (c *Categorizer) CategorySummary(txns []*models.Transaction) map[string]int {
	summary := make(map[string]int)
	for _, txn := range txns {
		category := txn.Category
		if category == "" {
			category = "Uncategorized"
		}
		summary[category]++
	}
	return summary
}
