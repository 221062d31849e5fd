package metrics

import (
	"math"
	"testing"

	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
)

type stubData struct {
	transactions []dataset.StoreTransaction
	sales        []dataset.RegionSale
	inventory    []dataset.InventoryItem
	customers    []dataset.CustomerPurchase
	orders       dataset.OnlineOrders
}

func (s *stubData) StoreTransactions() []dataset.StoreTransaction { return s.transactions }
func (s *stubData) RegionSales() []dataset.RegionSale             { return s.sales }
func (s *stubData) Inventory() []dataset.InventoryItem            { return s.inventory }
func (s *stubData) Customers() []dataset.CustomerPurchase         { return s.customers }
func (s *stubData) OnlineOrders() dataset.OnlineOrders            { return s.orders }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRevenueCombinesStoreAndOnline(t *testing.T) {
	calc := NewCalculator(&stubData{
		transactions: []dataset.StoreTransaction{
			{StoreID: "S01", TotalPrice: 100},
			{StoreID: "S01", TotalPrice: 50},
		},
		orders: dataset.OnlineOrders{Revenue: []float64{25, 25}},
	})

	m := calc.Revenue()
	if !almostEqual(m.StoreRevenue, 150) {
		t.Fatalf("store revenue = %v", m.StoreRevenue)
	}
	if !almostEqual(m.AvgTransaction, 75) {
		t.Fatalf("avg transaction = %v", m.AvgTransaction)
	}
	if m.TransactionCount != 2 {
		t.Fatalf("transaction count = %d", m.TransactionCount)
	}
	if !almostEqual(m.OnlineRevenue, 50) || !almostEqual(m.TotalRevenue, 200) {
		t.Fatalf("unexpected revenue totals: %+v", m)
	}
}

func TestProfitMarginZeroWhenNoRevenue(t *testing.T) {
	calc := NewCalculator(&stubData{})
	m := calc.Profit()
	if m.OverallMargin != 0 || m.GrossProfit != 0 {
		t.Fatalf("expected zero profit metrics, got %+v", m)
	}
}

func TestProfitFromRegionalSales(t *testing.T) {
	calc := NewCalculator(&stubData{
		sales: []dataset.RegionSale{
			{Region: "South", TotalPrice: 100, UnitCost: 10, Quantity: 4},
			{Region: "North", TotalPrice: 100, UnitCost: 5, Quantity: 4},
		},
	})

	m := calc.Profit()
	if !almostEqual(m.GrossProfit, 140) {
		t.Fatalf("gross profit = %v", m.GrossProfit)
	}
	if !almostEqual(m.OverallMargin, 70) {
		t.Fatalf("overall margin = %v", m.OverallMargin)
	}
}

func TestStorePerformanceSortedByRevenue(t *testing.T) {
	calc := NewCalculator(&stubData{
		transactions: []dataset.StoreTransaction{
			{StoreID: "S01", TotalPrice: 10},
			{StoreID: "S02", TotalPrice: 100},
			{StoreID: "S02", TotalPrice: 100},
			{StoreID: "S03", TotalPrice: 40},
		},
	})

	rows := calc.StorePerformance()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].StoreID != "S02" || rows[2].StoreID != "S01" {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if !almostEqual(rows[0].AvgTransaction, 100) || rows[0].TransactionCount != 2 {
		t.Fatalf("unexpected aggregates: %+v", rows[0])
	}
}

func TestRegionalPerformanceComputesMargins(t *testing.T) {
	calc := NewCalculator(&stubData{
		sales: []dataset.RegionSale{
			{Region: "South", TotalPrice: 200, UnitCost: 25, Quantity: 4},
			{Region: "North", TotalPrice: 100, UnitCost: 10, Quantity: 2},
		},
	})

	rows := calc.RegionalPerformance()
	if len(rows) != 2 || rows[0].Region != "South" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if !almostEqual(rows[0].Profit, 100) || !almostEqual(rows[0].MarginPct, 50) {
		t.Fatalf("unexpected south metrics: %+v", rows[0])
	}
}

func TestInventoryLowStockUsesQuartile(t *testing.T) {
	calc := NewCalculator(&stubData{
		inventory: []dataset.InventoryItem{
			{ProductID: "P1", QuantityInStock: 10},
			{ProductID: "P2", QuantityInStock: 20},
			{ProductID: "P3", QuantityInStock: 30},
			{ProductID: "P4", QuantityInStock: 40},
			{ProductID: "P5", QuantityInStock: 50},
		},
	})

	m := calc.Inventory()
	if !almostEqual(m.TotalInventory, 150) || !almostEqual(m.AvgStockLevel, 30) {
		t.Fatalf("unexpected inventory totals: %+v", m)
	}
	// 25th percentile of 10..50 is 20; only the 10-unit item is below.
	if m.LowStockItems != 1 {
		t.Fatalf("low stock items = %d", m.LowStockItems)
	}
}

func TestCustomersMetrics(t *testing.T) {
	calc := NewCalculator(&stubData{
		customers: []dataset.CustomerPurchase{
			{CustomerID: "C1", TotalPrice: 10, ReviewRating: 4},
			{CustomerID: "C2", TotalPrice: 30, ReviewRating: 5},
			{CustomerID: "C1", TotalPrice: 20, ReviewRating: 3},
		},
	})

	m := calc.Customers()
	if !almostEqual(m.AvgSatisfaction, 4) {
		t.Fatalf("avg satisfaction = %v", m.AvgSatisfaction)
	}
	if !almostEqual(m.SatisfactionStd, 1) {
		t.Fatalf("satisfaction std = %v", m.SatisfactionStd)
	}
	if !almostEqual(m.LifetimeValue, 20) {
		t.Fatalf("lifetime value = %v", m.LifetimeValue)
	}
	if m.CustomerCount != 2 {
		t.Fatalf("customer count = %d", m.CustomerCount)
	}
}

func TestDetectAnomaliesFlagsOutlierStore(t *testing.T) {
	data := &stubData{
		transactions: []dataset.StoreTransaction{
			{StoreID: "S01", TotalPrice: 100},
			{StoreID: "S02", TotalPrice: 100},
			{StoreID: "S03", TotalPrice: 100},
			{StoreID: "S04", TotalPrice: 100},
			{StoreID: "S05", TotalPrice: 1000},
		},
	}
	calc := NewCalculator(data)

	anomalies := calc.DetectAnomalies(DefaultAnomalyThreshold)
	found := false
	for _, a := range anomalies {
		if a.Type == "store_revenue" && a.StoreID == "S05" {
			found = true
			if a.Severity == "" {
				t.Fatalf("missing severity: %+v", a)
			}
		}
	}
	if !found {
		t.Fatalf("expected S05 outlier, got %+v", anomalies)
	}
}

func TestDetectAnomaliesLowStockAlert(t *testing.T) {
	calc := NewCalculator(&stubData{
		inventory: []dataset.InventoryItem{
			{ProductID: "P1", QuantityInStock: 1},
			{ProductID: "P2", QuantityInStock: 100},
			{ProductID: "P3", QuantityInStock: 100},
			{ProductID: "P4", QuantityInStock: 100},
			{ProductID: "P5", QuantityInStock: 100},
			{ProductID: "P6", QuantityInStock: 100},
			{ProductID: "P7", QuantityInStock: 100},
			{ProductID: "P8", QuantityInStock: 100},
			{ProductID: "P9", QuantityInStock: 100},
			{ProductID: "P10", QuantityInStock: 100},
			{ProductID: "P11", QuantityInStock: 100},
		},
	})

	anomalies := calc.DetectAnomalies(DefaultAnomalyThreshold)
	found := false
	for _, a := range anomalies {
		if a.Type == "inventory" && a.Severity == "high" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inventory alert, got %+v", anomalies)
	}
}

func TestQuantileMatchesLinearInterpolation(t *testing.T) {
	cases := []struct {
		values []float64
		q      float64
		want   float64
	}{
		{[]float64{1, 2, 3, 4}, 0.25, 1.75},
		{[]float64{1, 2, 3, 4}, 0.5, 2.5},
		{[]float64{10}, 0.1, 10},
		{[]float64{1, 2, 3, 4, 5}, 1.0, 5},
	}
	for _, tc := range cases {
		if got := quantile(tc.values, tc.q); !almostEqual(got, tc.want) {
			t.Fatalf("quantile(%v, %v) = %v, want %v", tc.values, tc.q, got, tc.want)
		}
	}
}
