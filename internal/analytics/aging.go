package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AgingBucket labels, in days outstanding.
var AgingBuckets = []string{"0-30", "31-60", "61-90", ">90"}

// AgingRow is one open balance grouped by its source document.
type AgingRow struct {
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	OldestDate    time.Time       `json:"oldest_date"`
	DaysOpen      int             `json:"days_open"`
	Bucket        string          `json:"bucket"`
	Amount        decimal.Decimal `json:"amount"`
}

// AgingReport groups open balances into standard buckets.
type AgingReport struct {
	AsOf    time.Time                  `json:"as_of"`
	Rows    []AgingRow                 `json:"rows"`
	Buckets map[string]decimal.Decimal `json:"buckets"`
	Total   decimal.Decimal            `json:"total"`
}

// GetARAging buckets open receivable balances by days outstanding.
func (s *Service) GetARAging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	return s.fetchAging(ctx, asOf, true)
}

// GetAPAging buckets open payable balances by days outstanding.
func (s *Service) GetAPAging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	return s.fetchAging(ctx, asOf, false)
}

func (s *Service) fetchAging(ctx context.Context, asOf time.Time, ar bool) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	prefix := "aging_ap"
	if ar {
		prefix = "aging_ar"
	}
	var report AgingReport
	err := s.cached(ctx, []string{prefix, asOf.Format("2006-01-02")}, &report, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.OpenBalancesByReference(ctx, asOf, ar)
		if err != nil {
			return nil, err
		}
		return buildAging(asOf, rows), nil
	})
	return report, err
}

func buildAging(asOf time.Time, rows []AgingRow) AgingReport {
	report := AgingReport{AsOf: asOf, Buckets: make(map[string]decimal.Decimal, len(AgingBuckets))}
	for _, b := range AgingBuckets {
		report.Buckets[b] = decimal.Zero
	}
	for _, row := range rows {
		row.DaysOpen = int(asOf.Sub(row.OldestDate).Hours() / 24)
		row.Bucket = bucketFor(row.DaysOpen)
		report.Buckets[row.Bucket] = report.Buckets[row.Bucket].Add(row.Amount)
		report.Total = report.Total.Add(row.Amount)
		report.Rows = append(report.Rows, row)
	}
	return report
}

func bucketFor(days int) string {
	switch {
	case days <= 30:
		return "0-30"
	case days <= 60:
		return "31-60"
	case days <= 90:
		return "61-90"
	default:
		return ">90"
	}
}
