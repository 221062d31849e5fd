package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
	conversationmodel "github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
	"github.com/zhouzirui/exec-dashboard/backend/internal/model/querymode"
	conversationservice "github.com/zhouzirui/exec-dashboard/backend/internal/service/conversation"
	insightservice "github.com/zhouzirui/exec-dashboard/backend/internal/service/insight"
)

type stubData struct{}

func (stubData) StoreTransactions() []dataset.StoreTransaction {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.StoreTransaction{
		{Date: day, StoreID: "S1", Location: "North", TotalPrice: 900, Quantity: 2},
	}
}

func (stubData) RegionSales() []dataset.RegionSale {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.RegionSale{
		{Date: day, Region: "North", TotalPrice: 700, UnitCost: 300, Quantity: 1},
	}
}

func (stubData) Inventory() []dataset.InventoryItem {
	return []dataset.InventoryItem{
		{ProductID: "P1", ProductName: "Widget", QuantityInStock: 40, ReorderPoint: 10, UnitCost: 3},
	}
}

func (stubData) Customers() []dataset.CustomerPurchase {
	return []dataset.CustomerPurchase{
		{CustomerID: "C1", TotalPrice: 150, ReviewRating: 4},
	}
}

func (stubData) OnlineOrders() dataset.OnlineOrders {
	return dataset.OnlineOrders{Columns: []string{"total"}, RowCount: 1, RevenueColumn: "total", Revenue: []float64{50}}
}

type fakeStreamer struct {
	streaming bool
	chunks    []string
	answer    string
	err       error
}

func (f *fakeStreamer) StreamingEnabled() bool { return f.streaming }

func (f *fakeStreamer) Answer(context.Context, []conversationmodel.Message, string) (string, error) {
	return f.answer, f.err
}

func (f *fakeStreamer) StreamAnswer(context.Context, []conversationmodel.Message, string) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	reader, writer := schema.Pipe[*schema.Message](len(f.chunks))
	go func() {
		defer writer.Close()
		for _, chunk := range f.chunks {
			writer.Send(schema.AssistantMessage(chunk, nil), nil)
		}
	}()
	return reader, nil
}

func setup(ai Streamer) (*Handler, *conversationservice.Service, string) {
	data := stubData{}
	sessions := conversationservice.NewService(10, nil)
	insights := insightservice.NewService(metrics.NewCalculator(data), data)
	modes := querymode.NewMemoryStore(querymode.Seed())

	handle, _ := sessions.CreateSession(context.Background(), "")
	return New(ai, sessions, insights, modes), sessions, handle.ID
}

func decodeEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("failed to decode event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func eventsByName(events []StreamResponse, name string) []StreamResponse {
	var out []StreamResponse
	for _, event := range events {
		if event.Event == name {
			out = append(out, event)
		}
	}
	return out
}

func TestStreamDeliversDeltasAndFinalMessage(t *testing.T) {
	ai := &fakeStreamer{streaming: true, chunks: []string{"Revenue ", "is ", "up."}}
	handler, sessions, sessionID := setup(ai)

	resp := httptest.NewRecorder()
	if err := handler.HandleStreamRequest(context.Background(), resp, sessionID, "How is revenue trending?"); err != nil {
		t.Fatalf("HandleStreamRequest failed: %v", err)
	}

	events := decodeEvents(t, resp.Body.String())

	starts := eventsByName(events, "start")
	if len(starts) != 1 || starts[0].QueryType != "performance" {
		t.Fatalf("unexpected start events: %+v", starts)
	}

	deltas := eventsByName(events, "delta")
	if len(deltas) != 3 {
		t.Fatalf("expected 3 delta events, got %d", len(deltas))
	}

	finals := eventsByName(events, "message")
	if len(finals) != 1 {
		t.Fatalf("expected 1 message event, got %d", len(finals))
	}
	if !strings.HasPrefix(finals[0].Content, "**Query Type:** Performance") {
		t.Errorf("final message missing type prefix: %q", finals[0].Content)
	}
	if !strings.Contains(finals[0].Content, "Revenue is up.") {
		t.Errorf("final message missing assembled answer: %q", finals[0].Content)
	}

	if ends := eventsByName(events, "end"); len(ends) != 1 || !ends[0].Finished {
		t.Fatalf("unexpected end events: %+v", ends)
	}

	// Exchange recorded: question plus raw answer.
	transcript, err := sessions.Snapshot(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(transcript) != 2 || transcript[1].Content != "Revenue is up." {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}

func TestStreamNonStreamingModeSendsSingleMessage(t *testing.T) {
	ai := &fakeStreamer{streaming: false, answer: "Margins are stable."}
	handler, _, sessionID := setup(ai)

	resp := httptest.NewRecorder()
	if err := handler.HandleStreamRequest(context.Background(), resp, sessionID, "Tell me about margins"); err != nil {
		t.Fatalf("HandleStreamRequest failed: %v", err)
	}

	events := decodeEvents(t, resp.Body.String())
	if deltas := eventsByName(events, "delta"); len(deltas) != 0 {
		t.Fatalf("expected no delta events, got %d", len(deltas))
	}
	finals := eventsByName(events, "message")
	if len(finals) != 1 || !strings.Contains(finals[0].Content, "Margins are stable.") {
		t.Fatalf("unexpected message events: %+v", finals)
	}
}

func TestStreamFailureCancelsPendingQuestion(t *testing.T) {
	ai := &fakeStreamer{streaming: true, err: errors.New("provider down")}
	handler, sessions, sessionID := setup(ai)

	resp := httptest.NewRecorder()
	if err := handler.HandleStreamRequest(context.Background(), resp, sessionID, "How is revenue?"); err == nil {
		t.Fatal("expected error from failed stream")
	}

	events := decodeEvents(t, resp.Body.String())
	if errs := eventsByName(events, "error"); len(errs) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(errs))
	}

	transcript, err := sessions.Snapshot(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(transcript) != 0 {
		t.Fatalf("expected pending question cancelled, transcript: %+v", transcript)
	}
}

func TestStreamUnknownSessionEmitsError(t *testing.T) {
	ai := &fakeStreamer{streaming: true, chunks: []string{"x"}}
	handler, _, _ := setup(ai)

	resp := httptest.NewRecorder()
	if err := handler.HandleStreamRequest(context.Background(), resp, "missing", "How is revenue?"); err == nil {
		t.Fatal("expected error for unknown session")
	}

	events := decodeEvents(t, resp.Body.String())
	if errs := eventsByName(events, "error"); len(errs) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(errs))
	}
}
