// Package metrics computes the aggregate KPIs the dashboard reports:
// revenue, profit margins, inventory levels, customer satisfaction,
// per-store and per-region performance, and z-score anomaly detection.
package metrics

import (
	"fmt"
	"math"
	"sort"

	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
)

// Data is the slice of the dataset loader the calculator reads. The
// loader satisfies it directly; tests provide a stub.
type Data interface {
	StoreTransactions() []dataset.StoreTransaction
	RegionSales() []dataset.RegionSale
	Inventory() []dataset.InventoryItem
	Customers() []dataset.CustomerPurchase
	OnlineOrders() dataset.OnlineOrders
}

// Calculator derives KPIs from the loaded datasets. Stateless; every
// call recomputes from the current data.
type Calculator struct {
	data Data
}

// NewCalculator wires a calculator to its data source.
func NewCalculator(data Data) *Calculator {
	return &Calculator{data: data}
}

// RevenueMetrics aggregates store and online revenue.
type RevenueMetrics struct {
	StoreRevenue     float64 `json:"storeRevenue"`
	AvgTransaction   float64 `json:"avgTransaction"`
	TransactionCount int     `json:"transactionCount"`
	OnlineRevenue    float64 `json:"onlineRevenue"`
	TotalRevenue     float64 `json:"totalRevenue"`
}

// Revenue sums store transactions and the online orders extract.
func (c *Calculator) Revenue() RevenueMetrics {
	var m RevenueMetrics

	transactions := c.data.StoreTransactions()
	for _, t := range transactions {
		m.StoreRevenue += t.TotalPrice
	}
	m.TransactionCount = len(transactions)
	if m.TransactionCount > 0 {
		m.AvgTransaction = m.StoreRevenue / float64(m.TransactionCount)
	}

	for _, v := range c.data.OnlineOrders().Revenue {
		m.OnlineRevenue += v
	}

	m.TotalRevenue = m.StoreRevenue + m.OnlineRevenue
	return m
}

// ProfitMetrics reports gross profit and the overall margin percentage.
type ProfitMetrics struct {
	GrossProfit   float64 `json:"grossProfit"`
	OverallMargin float64 `json:"overallMargin"`
}

// Profit computes gross profit from the regional sales table:
// revenue minus unit cost times quantity. Margin is zero when there is
// no revenue.
func (c *Calculator) Profit() ProfitMetrics {
	var revenue, cost float64
	for _, s := range c.data.RegionSales() {
		revenue += s.TotalPrice
		cost += s.UnitCost * s.Quantity
	}

	m := ProfitMetrics{GrossProfit: revenue - cost}
	if revenue > 0 {
		m.OverallMargin = (revenue - cost) / revenue * 100
	}
	return m
}

// InventoryMetrics summarizes stock levels.
type InventoryMetrics struct {
	TotalInventory float64 `json:"totalInventory"`
	AvgStockLevel  float64 `json:"avgStockLevel"`
	LowStockItems  int     `json:"lowStockItems"`
}

// Inventory reports totals and the count of items below the 25th
// percentile of stock.
func (c *Calculator) Inventory() InventoryMetrics {
	items := c.data.Inventory()
	if len(items) == 0 {
		return InventoryMetrics{}
	}

	stocks := make([]float64, 0, len(items))
	var total float64
	for _, item := range items {
		total += item.QuantityInStock
		stocks = append(stocks, item.QuantityInStock)
	}

	threshold := quantile(stocks, 0.25)
	low := 0
	for _, s := range stocks {
		if s < threshold {
			low++
		}
	}

	return InventoryMetrics{
		TotalInventory: total,
		AvgStockLevel:  total / float64(len(items)),
		LowStockItems:  low,
	}
}

// CustomerMetrics summarizes satisfaction and spend.
type CustomerMetrics struct {
	AvgSatisfaction float64 `json:"avgSatisfaction"`
	SatisfactionStd float64 `json:"satisfactionStd"`
	LifetimeValue   float64 `json:"lifetimeValue"`
	CustomerCount   int     `json:"customerCount"`
}

// Customers reports the average review rating, its spread, and the mean
// spend per purchase (the lifetime-value proxy the dashboard uses).
func (c *Calculator) Customers() CustomerMetrics {
	purchases := c.data.Customers()
	if len(purchases) == 0 {
		return CustomerMetrics{}
	}

	ratings := make([]float64, 0, len(purchases))
	var spend float64
	distinct := make(map[string]struct{})
	for _, p := range purchases {
		ratings = append(ratings, p.ReviewRating)
		spend += p.TotalPrice
		distinct[p.CustomerID] = struct{}{}
	}

	return CustomerMetrics{
		AvgSatisfaction: mean(ratings),
		SatisfactionStd: sampleStd(ratings),
		LifetimeValue:   spend / float64(len(purchases)),
		CustomerCount:   len(distinct),
	}
}

// KeyMetrics bundles the four KPI blocks for the overview endpoint and
// the live feed.
type KeyMetrics struct {
	Revenue   RevenueMetrics   `json:"revenue"`
	Profit    ProfitMetrics    `json:"profit"`
	Inventory InventoryMetrics `json:"inventory"`
	Customers CustomerMetrics  `json:"customers"`
}

// KeyMetrics computes all KPI blocks in one call.
func (c *Calculator) KeyMetrics() KeyMetrics {
	return KeyMetrics{
		Revenue:   c.Revenue(),
		Profit:    c.Profit(),
		Inventory: c.Inventory(),
		Customers: c.Customers(),
	}
}

// StorePerformance is one store's aggregate row, revenue-sorted.
type StorePerformance struct {
	StoreID          string  `json:"storeId"`
	TotalRevenue     float64 `json:"totalRevenue"`
	AvgTransaction   float64 `json:"avgTransaction"`
	TransactionCount int     `json:"transactionCount"`
}

// StorePerformance groups transactions by store, sorted by total
// revenue descending.
func (c *Calculator) StorePerformance() []StorePerformance {
	type agg struct {
		total float64
		count int
	}
	byStore := make(map[string]*agg)
	for _, t := range c.data.StoreTransactions() {
		a := byStore[t.StoreID]
		if a == nil {
			a = &agg{}
			byStore[t.StoreID] = a
		}
		a.total += t.TotalPrice
		a.count++
	}

	rows := make([]StorePerformance, 0, len(byStore))
	for id, a := range byStore {
		rows = append(rows, StorePerformance{
			StoreID:          id,
			TotalRevenue:     a.total,
			AvgTransaction:   a.total / float64(a.count),
			TransactionCount: a.count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalRevenue != rows[j].TotalRevenue {
			return rows[i].TotalRevenue > rows[j].TotalRevenue
		}
		return rows[i].StoreID < rows[j].StoreID
	})
	return rows
}

// RegionalPerformance is one region's aggregate row.
type RegionalPerformance struct {
	Region    string  `json:"region"`
	Revenue   float64 `json:"revenue"`
	Cost      float64 `json:"cost"`
	Profit    float64 `json:"profit"`
	MarginPct float64 `json:"marginPct"`
	Quantity  float64 `json:"quantity"`
}

// RegionalPerformance groups regional sales by region, sorted by
// revenue descending.
func (c *Calculator) RegionalPerformance() []RegionalPerformance {
	byRegion := make(map[string]*RegionalPerformance)
	for _, s := range c.data.RegionSales() {
		r := byRegion[s.Region]
		if r == nil {
			r = &RegionalPerformance{Region: s.Region}
			byRegion[s.Region] = r
		}
		r.Revenue += s.TotalPrice
		r.Cost += s.UnitCost * s.Quantity
		r.Quantity += s.Quantity
	}

	rows := make([]RegionalPerformance, 0, len(byRegion))
	for _, r := range byRegion {
		r.Profit = r.Revenue - r.Cost
		if r.Revenue > 0 {
			r.MarginPct = r.Profit / r.Revenue * 100
		}
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Revenue != rows[j].Revenue {
			return rows[i].Revenue > rows[j].Revenue
		}
		return rows[i].Region < rows[j].Region
	})
	return rows
}

// Anomaly flags an outlier worth executive attention.
type Anomaly struct {
	Type     string `json:"type"`
	StoreID  string `json:"storeId,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// DefaultAnomalyThreshold is the z-score above which a store's revenue
// total counts as an outlier.
const DefaultAnomalyThreshold = 1.5

// DetectAnomalies flags stores whose revenue totals deviate from the
// mean by more than threshold standard deviations (severity "high"
// beyond 2), plus a critical-stock alert when items fall below the 10th
// percentile.
func (c *Calculator) DetectAnomalies(threshold float64) []Anomaly {
	var anomalies []Anomaly

	stores := c.StorePerformance()
	if len(stores) > 1 {
		totals := make([]float64, 0, len(stores))
		for _, s := range stores {
			totals = append(totals, s.TotalRevenue)
		}
		meanTotal := mean(totals)
		stdTotal := sampleStd(totals)

		for _, s := range stores {
			z := 0.0
			if stdTotal > 0 {
				z = math.Abs((s.TotalRevenue - meanTotal) / stdTotal)
			}
			if z <= threshold {
				continue
			}

			pctChange := (s.TotalRevenue - meanTotal) / meanTotal * 100
			direction := "above"
			if pctChange < 0 {
				direction = "below"
			}
			severity := "medium"
			if z > 2 {
				severity = "high"
			}
			anomalies = append(anomalies, Anomaly{
				Type:     "store_revenue",
				StoreID:  s.StoreID,
				Message:  fmt.Sprintf("Store %s's revenue is %.1f%% %s average", s.StoreID, math.Abs(pctChange), direction),
				Severity: severity,
			})
		}
	}

	items := c.data.Inventory()
	if len(items) > 0 {
		stocks := make([]float64, 0, len(items))
		for _, item := range items {
			stocks = append(stocks, item.QuantityInStock)
		}
		critical := quantile(stocks, 0.1)
		count := 0
		for _, s := range stocks {
			if s < critical {
				count++
			}
		}
		if count > 0 {
			anomalies = append(anomalies, Anomaly{
				Type:     "inventory",
				Message:  fmt.Sprintf("%d items have critically low stock levels", count),
				Severity: "high",
			})
		}
	}

	return anomalies
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the n-1 standard deviation, matching how the original
// dashboards computed spread.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// quantile uses linear interpolation between order statistics so the
// thresholds line up with the numbers the dashboards always showed.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
