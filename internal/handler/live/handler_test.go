package live

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
)

type stubData struct{}

func (stubData) StoreTransactions() []dataset.StoreTransaction {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.StoreTransaction{
		{Date: day, StoreID: "S1", Location: "North", TotalPrice: 1000, Quantity: 2},
	}
}

func (stubData) RegionSales() []dataset.RegionSale {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.RegionSale{
		{Date: day, Region: "North", TotalPrice: 800, UnitCost: 400, Quantity: 2},
	}
}

func (stubData) Inventory() []dataset.InventoryItem {
	return []dataset.InventoryItem{
		{ProductID: "P1", ProductName: "Widget", QuantityInStock: 30, ReorderPoint: 10, UnitCost: 2},
	}
}

func (stubData) Customers() []dataset.CustomerPurchase {
	return []dataset.CustomerPurchase{
		{CustomerID: "C1", TotalPrice: 120, ReviewRating: 4},
	}
}

func (stubData) OnlineOrders() dataset.OnlineOrders {
	return dataset.OnlineOrders{Columns: []string{"total"}, RowCount: 1, RevenueColumn: "total", Revenue: []float64{30}}
}

type wsMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func dial(t *testing.T) *websocket.Conn {
	t.Helper()

	handler := New(metrics.NewCalculator(stubData{}), time.Minute)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func TestConnectSendsInitialSnapshot(t *testing.T) {
	conn := dial(t)

	msg := readMessage(t, conn)
	if msg.Type != "kpis" {
		t.Fatalf("first message type = %q, want kpis", msg.Type)
	}

	var snapshot kpiSnapshot
	if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot.KPIs.Revenue.StoreRevenue != 1000 {
		t.Errorf("store revenue = %v, want 1000", snapshot.KPIs.Revenue.StoreRevenue)
	}
	if snapshot.Anomalies == nil {
		t.Error("anomalies should be an array, not null")
	}
}

func TestRefreshRequestsImmediateSnapshot(t *testing.T) {
	conn := dial(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]string{"type": "refresh"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "kpis" {
		t.Fatalf("refresh reply type = %q, want kpis", msg.Type)
	}
}

func TestConfigChangesInterval(t *testing.T) {
	conn := dial(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "config", "intervalSeconds": 10}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "config" {
		t.Fatalf("config reply type = %q, want config", msg.Type)
	}
}

func TestConfigRejectsOutOfRangeInterval(t *testing.T) {
	conn := dial(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "config", "intervalSeconds": 1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "error" {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
}

func TestUnsupportedMessageType(t *testing.T) {
	conn := dial(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]string{"type": "bogus"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "error" {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
}
