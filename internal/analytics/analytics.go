// Package analytics aggregates committed sales. Every function is pure.
package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/store"
)

const dateLayout = "2006-01-02"

// Summarize totals sales and returns. A transaction counts as a return when
// it is flagged as one or contains any return line. Money figures are rounded
// half away from zero to two places once, after summation.
func Summarize(sales []domain.Sale) domain.SalesAnalytics {
	totalSales := decimal.Zero
	totalReturns := decimal.Zero
	totalDiscounts := decimal.Zero
	salesCount := 0
	returnCount := 0

	for _, sale := range sales {
		amount := decimal.NewFromFloat(sale.TotalAmount)
		if sale.HasReturn() {
			totalReturns = totalReturns.Add(amount.Abs())
			returnCount++
		} else {
			totalSales = totalSales.Add(amount)
			salesCount++
		}
		if sale.DiscountAmount != 0 {
			totalDiscounts = totalDiscounts.Add(decimal.NewFromFloat(sale.DiscountAmount))
		}
	}

	transactions := salesCount + returnCount
	net := totalSales.Sub(totalReturns)
	avg := decimal.Zero
	if transactions > 0 {
		avg = net.Div(decimal.NewFromInt(int64(transactions)))
	}

	return domain.SalesAnalytics{
		TotalSales:         money(totalSales),
		TotalReturns:       money(totalReturns),
		NetSales:           money(net),
		TotalDiscounts:     money(totalDiscounts),
		TotalTransactions:  transactions,
		SalesTransactions:  salesCount,
		ReturnTransactions: returnCount,
		AvgTransaction:     money(avg),
	}
}

// FilterByDate keeps sales created within [from, to]. A nil bound is open.
func FilterByDate(sales []domain.Sale, from *time.Time, to *time.Time) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if from != nil && sale.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && sale.CreatedAt.After(*to) {
			continue
		}
		out = append(out, sale)
	}
	return out
}

// ParseRange turns the request's optional start and end dates into bounds.
// Plain dates cover the whole day; RFC 3339 timestamps are used as given.
func ParseRange(req domain.AnalyticsRequest) (*time.Time, *time.Time, error) {
	from, err := parseBound(req.StartDate, false)
	if err != nil {
		return nil, nil, fmt.Errorf("start_date: %w", err)
	}
	to, err := parseBound(req.EndDate, true)
	if err != nil {
		return nil, nil, fmt.Errorf("end_date: %w", err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("end_date before start_date: %w", store.ErrInvalidRecord)
	}
	return from, to, nil
}

func parseBound(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", value, store.ErrInvalidRecord)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

// MedicineHistory reports how one medicine sold over the last days up to now.
func MedicineHistory(sales []domain.Sale, medicineID string, days int, now time.Time) domain.MedicineSalesHistory {
	if days < 1 {
		days = 30
	}
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	history := domain.MedicineSalesHistory{MedicineID: medicineID, Days: days}
	revenue := decimal.Zero

	for _, sale := range sales {
		if sale.CreatedAt.Before(since) || sale.CreatedAt.After(now) {
			continue
		}
		touched := false
		for _, item := range sale.Items {
			if item.MedicineID != medicineID {
				continue
			}
			touched = true
			line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
			if item.IsReturn || sale.IsReturn {
				history.UnitsReturned += item.Quantity
				revenue = revenue.Sub(line)
				continue
			}
			history.UnitsSold += item.Quantity
			revenue = revenue.Add(line)
		}
		if touched {
			history.Transactions++
		}
	}
	history.Revenue = money(revenue)
	return history
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
