package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
)

type stubData struct{}

func (stubData) StoreTransactions() []dataset.StoreTransaction {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.StoreTransaction{
		{Date: day, StoreID: "S1", Location: "North", TotalPrice: 1500, Quantity: 3},
		{Date: day, StoreID: "S2", Location: "South", TotalPrice: 500, Quantity: 1},
	}
}

func (stubData) RegionSales() []dataset.RegionSale {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.RegionSale{
		{Date: day, Region: "North", TotalPrice: 1000, UnitCost: 500, Quantity: 2},
		{Date: day, Region: "South", TotalPrice: 400, UnitCost: 100, Quantity: 1},
	}
}

func (stubData) Inventory() []dataset.InventoryItem {
	return []dataset.InventoryItem{
		{ProductID: "P1", ProductName: "Widget", QuantityInStock: 40, ReorderPoint: 10, UnitCost: 3},
		{ProductID: "P2", ProductName: "Gadget", QuantityInStock: 4, ReorderPoint: 10, UnitCost: 6},
	}
}

func (stubData) Customers() []dataset.CustomerPurchase {
	return []dataset.CustomerPurchase{
		{CustomerID: "C1", TotalPrice: 250, ReviewRating: 5},
	}
}

func (stubData) OnlineOrders() dataset.OnlineOrders {
	return dataset.OnlineOrders{Columns: []string{"total"}, RowCount: 1, RevenueColumn: "total", Revenue: []float64{75}}
}

func (stubData) Summary() []dataset.Summary {
	return []dataset.Summary{
		{Name: "store_transactions", Rows: 2, Columns: 8, Fields: []string{"Date", "StoreID"}},
	}
}

func setupRouter() *chi.Mux {
	data := stubData{}
	handler := New(metrics.NewCalculator(data), data)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func get(t *testing.T, r *chi.Mux, path string) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", path, resp.Code)
	}
	return resp
}

func TestKeyMetricsEndpoint(t *testing.T) {
	r := setupRouter()
	resp := get(t, r, "/dashboard/kpis")

	var kpis metrics.KeyMetrics
	if err := json.Unmarshal(resp.Body.Bytes(), &kpis); err != nil {
		t.Fatalf("failed to decode kpis: %v", err)
	}
	if kpis.Revenue.StoreRevenue != 2000 {
		t.Errorf("store revenue = %v, want 2000", kpis.Revenue.StoreRevenue)
	}
	if kpis.Revenue.TotalRevenue != 2075 {
		t.Errorf("total revenue = %v, want 2075", kpis.Revenue.TotalRevenue)
	}
}

func TestStoresEndpointSortedByRevenue(t *testing.T) {
	r := setupRouter()
	resp := get(t, r, "/dashboard/stores")

	var payload struct {
		Stores []metrics.StorePerformance `json:"stores"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode stores: %v", err)
	}
	if len(payload.Stores) != 2 || payload.Stores[0].StoreID != "S1" {
		t.Fatalf("unexpected store order: %+v", payload.Stores)
	}
}

func TestRegionsEndpoint(t *testing.T) {
	r := setupRouter()
	resp := get(t, r, "/dashboard/regions")

	var payload struct {
		Regions []metrics.RegionalPerformance `json:"regions"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode regions: %v", err)
	}
	if len(payload.Regions) != 2 || payload.Regions[0].Region != "North" {
		t.Fatalf("unexpected regions: %+v", payload.Regions)
	}
}

func TestAnomaliesEndpointAlwaysReturnsArray(t *testing.T) {
	r := setupRouter()
	resp := get(t, r, "/dashboard/anomalies")

	var payload struct {
		Anomalies []metrics.Anomaly `json:"anomalies"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode anomalies: %v", err)
	}
	if payload.Anomalies == nil {
		t.Fatal("expected anomalies array, got null")
	}
}

func TestDatasetsEndpoint(t *testing.T) {
	r := setupRouter()
	resp := get(t, r, "/dashboard/datasets")

	var payload struct {
		Datasets []dataset.Summary `json:"datasets"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode datasets: %v", err)
	}
	if len(payload.Datasets) != 1 || payload.Datasets[0].Name != "store_transactions" {
		t.Fatalf("unexpected datasets: %+v", payload.Datasets)
	}
}
