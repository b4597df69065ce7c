package analytics

import (
	"context"
	"time"
)

// BackorderRow summarises unfulfilled demand for one product. A row where
// nothing was ever allocated is a preorder; partial allocation with a
// pending remainder is a true backorder.
type BackorderRow struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	Orders       int    `json:"orders"`
	QtyPending   int64  `json:"qty_pending"`
	QtyAllocated int64  `json:"qty_allocated"`
	Kind         string `json:"kind"` // "backorder" or "preorder"
}

// BackorderReport is the shortage overview for the warehouse team.
type BackorderReport struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	Rows            []BackorderRow `json:"rows"`
	TotalPendingQty int64          `json:"total_pending_qty"`
}

// GetBackorderReport aggregates open backorders per product.
func (s *Service) GetBackorderReport(ctx context.Context) (BackorderReport, error) {
	var report BackorderReport
	err := s.cached(ctx, []string{"backorders"}, &report, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.OpenBackordersByProduct(ctx)
		if err != nil {
			return nil, err
		}
		report := BackorderReport{GeneratedAt: s.now().UTC()}
		for _, row := range rows {
			if row.QtyAllocated == 0 {
				row.Kind = "preorder"
			} else {
				row.Kind = "backorder"
			}
			report.TotalPendingQty += row.QtyPending
			report.Rows = append(report.Rows, row)
		}
		return report, nil
	})
	return report, err
}
