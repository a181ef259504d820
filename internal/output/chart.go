package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// maxChartBars keeps category bar charts readable; smaller categories fold
// into "Other".
const maxChartBars = 12

// ChartWriter renders PNG charts of the processed data set.
type ChartWriter struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewChartWriter creates a chart writer.
func NewChartWriter(cfg *common.Config, logger *common.Logger) *ChartWriter {
	return &ChartWriter{cfg: cfg, logger: logger}
}

// WriteCategoryChart renders absolute expense totals per category as a bar
// chart and writes it to spending_by_category.png in the output directory.
func (w *ChartWriter) WriteCategoryChart(outDir string, txns []*models.Transaction) (string, error) {
	totals := make(map[string]float64)
	for _, txn := range txns {
		if txn.Category == "" || !txn.Amount.IsNegative() {
			continue
		}
		cat, ok := w.cfg.Categories[txn.Category]
		if !ok || cat.Type != models.CategoryExpense {
			continue
		}
		amount, _ := txn.Amount.Abs().Float64()
		totals[cat.Name] += amount
	}
	if len(totals) == 0 {
		w.logger.Debug().Msg("No expense data for category chart")
		return "", nil
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if totals[names[i]] != totals[names[j]] {
			return totals[names[i]] > totals[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > maxChartBars {
		other := 0.0
		for _, name := range names[maxChartBars-1:] {
			other += totals[name]
		}
		names = append(names[:maxChartBars-1], "Other")
		totals["Other"] = other
	}

	bars := make([]chart.Value, 0, len(names))
	for _, name := range names {
		bars = append(bars, chart.Value{
			Label: name,
			Value: totals[name],
			Style: chart.Style{FillColor: drawing.ColorFromHex("2563eb")},
		})
	}

	graph := chart.BarChart{
		Title:  "Spending by Category",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		BarWidth: 50,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("chart render failed: %w", err)
	}

	path := filepath.Join(outDir, "spending_by_category.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write chart: %w", err)
	}

	w.logger.Info().Str("file", path).Int("categories", len(bars)).Msg("Rendered category chart")
	return path, nil
}

// WriteBalanceChart renders per-account running balances over time as a
// line chart. Accounts with fewer than two known balances are skipped.
func (w *ChartWriter) WriteBalanceChart(outDir string, txns []*models.Transaction) (string, error) {
	type point struct {
		date    time.Time
		balance float64
	}

	byAccount := make(map[string][]point)
	for _, txn := range txns {
		if txn.RunningBalance == nil {
			continue
		}
		balance, _ := txn.RunningBalance.Float64()
		byAccount[txn.AccountName] = append(byAccount[txn.AccountName], point{date: txn.Date, balance: balance})
	}

	names := make([]string, 0, len(byAccount))
	for name := range byAccount {
		if len(byAccount[name]) >= 2 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		w.logger.Debug().Msg("No balance data for balance chart")
		return "", nil
	}
	sort.Strings(names)

	palette := []string{"2563eb", "dc2626", "16a34a", "9333ea", "ea580c", "0891b2"}

	var series []chart.Series
	for i, name := range names {
		points := byAccount[name]
		sort.SliceStable(points, func(a, b int) bool { return points[a].date.Before(points[b].date) })

		xs := make([]time.Time, len(points))
		ys := make([]float64, len(points))
		for j, p := range points {
			xs[j] = p.date
			ys[j] = p.balance
		}

		series = append(series, chart.TimeSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(palette[i%len(palette)]),
				StrokeWidth: 2,
			},
			XValues: xs,
			YValues: ys,
		})
	}

	graph := chart.Chart{
		Title:  "Account Balances",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("chart render failed: %w", err)
	}

	path := filepath.Join(outDir, "account_balances.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write chart: %w", err)
	}

	w.logger.Info().Str("file", path).Int("accounts", len(names)).Msg("Rendered balance chart")
	return path, nil
}
