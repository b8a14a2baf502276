// Package reports aggregates closed-drawer history into daily summaries.
// Statistics here are analytical output only: amounts leave the decimal
// domain as formatted strings, and floats are used solely for the summary
// statistics, never fed back into the books.
package reports

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/mvalderrama/electrocaja/internal/money"
)

// DailySummary is the aggregated cash movement for one business date.
type DailySummary struct {
	BusinessDate     string `json:"business_date"`
	DrawersClosed    int    `json:"drawers_closed"`
	IncomeLocal      string `json:"income_local"`
	IncomeForeign    string `json:"income_foreign"`
	ExpenseLocal     string `json:"expense_local"`
	ExpenseForeign   string `json:"expense_foreign"`
	MobileTotal      string `json:"mobile_total"`
	DiscrepancyTotal string `json:"discrepancy_total"`
	Discrepancies    int    `json:"discrepancies"`
}

// Overview carries summary statistics over the reported period.
type Overview struct {
	Days                []DailySummary `json:"days"`
	MeanDailyIncome     float64        `json:"mean_daily_income"`
	StdDevDailyIncome   float64        `json:"stddev_daily_income"`
	MeanDiscrepancy     float64        `json:"mean_discrepancy"`
	TotalDiscrepancies  int            `json:"total_discrepancies"`
	AdjustedDrawerRatio float64        `json:"adjusted_drawer_ratio"`
}

// Service builds reports from pos.db.
type Service struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewService creates a new reports service.
func NewService(db *sql.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("service", "reports").Logger(),
	}
}

// DrawerOverview aggregates the last n business dates of closed drawers.
func (s *Service) DrawerOverview(days int) (*Overview, error) {
	if days <= 0 {
		days = 30
	}

	rows, err := s.db.Query(`
		SELECT business_date,
		       COUNT(*),
		       COALESCE(SUM(CAST(income_local AS REAL)), 0),
		       COALESCE(SUM(CAST(income_foreign AS REAL)), 0),
		       COALESCE(SUM(CAST(expense_local AS REAL)), 0),
		       COALESCE(SUM(CAST(expense_foreign AS REAL)), 0),
		       COALESCE(SUM(CAST(mobile_total AS REAL)), 0)
		FROM drawers
		WHERE status = 'CLOSED'
		GROUP BY business_date
		ORDER BY business_date DESC
		LIMIT ?`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate drawers: %w", err)
	}
	defer rows.Close()

	var summaries []DailySummary
	var incomes []float64
	for rows.Next() {
		var d DailySummary
		var incomeLocal, incomeForeign, expenseLocal, expenseForeign, mobile float64
		if err := rows.Scan(&d.BusinessDate, &d.DrawersClosed, &incomeLocal, &incomeForeign, &expenseLocal, &expenseForeign, &mobile); err != nil {
			return nil, err
		}
		d.IncomeLocal = formatFloat(incomeLocal)
		d.IncomeForeign = formatFloat(incomeForeign)
		d.ExpenseLocal = formatFloat(expenseLocal)
		d.ExpenseForeign = formatFloat(expenseForeign)
		d.MobileTotal = formatFloat(mobile)
		summaries = append(summaries, d)
		incomes = append(incomes, incomeLocal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	discrepancies, err := s.discrepanciesByDate()
	if err != nil {
		return nil, err
	}

	var discrepancyAmounts []float64
	totalDiscrepancies := 0
	for i := range summaries {
		if agg, ok := discrepancies[summaries[i].BusinessDate]; ok {
			summaries[i].Discrepancies = agg.count
			summaries[i].DiscrepancyTotal = formatFloat(agg.total)
			totalDiscrepancies += agg.count
			discrepancyAmounts = append(discrepancyAmounts, agg.total)
		} else {
			summaries[i].DiscrepancyTotal = "0.00"
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].BusinessDate < summaries[j].BusinessDate
	})

	overview := &Overview{Days: summaries, TotalDiscrepancies: totalDiscrepancies}
	if len(incomes) > 0 {
		overview.MeanDailyIncome = stat.Mean(incomes, nil)
		if len(incomes) > 1 {
			overview.StdDevDailyIncome = stat.StdDev(incomes, nil)
		}
	}
	if len(discrepancyAmounts) > 0 {
		overview.MeanDiscrepancy = stat.Mean(discrepancyAmounts, nil)
	}

	totalDrawers := 0
	for _, d := range summaries {
		totalDrawers += d.DrawersClosed
	}
	if totalDrawers > 0 {
		adjusted, err := s.adjustedDrawerCount()
		if err != nil {
			return nil, err
		}
		overview.AdjustedDrawerRatio = float64(adjusted) / float64(totalDrawers)
	}

	return overview, nil
}

type discrepancyAgg struct {
	count int
	total float64
}

func (s *Service) discrepanciesByDate() (map[string]discrepancyAgg, error) {
	rows, err := s.db.Query(`
		SELECT d.business_date, COUNT(*), COALESCE(SUM(CAST(a.amount AS REAL)), 0)
		FROM ledger_adjustments a
		JOIN drawers d ON d.id = a.drawer_id
		GROUP BY d.business_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate adjustments: %w", err)
	}
	defer rows.Close()

	result := make(map[string]discrepancyAgg)
	for rows.Next() {
		var date string
		var agg discrepancyAgg
		if err := rows.Scan(&date, &agg.count, &agg.total); err != nil {
			return nil, err
		}
		result[date] = agg
	}
	return result, rows.Err()
}

func (s *Service) adjustedDrawerCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(DISTINCT drawer_id) FROM ledger_adjustments").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count adjusted drawers: %w", err)
	}
	return n, nil
}

func formatFloat(v float64) string {
	d, err := money.Parse(fmt.Sprintf("%.2f", v))
	if err != nil {
		return "0.00"
	}
	return money.Format(d)
}
