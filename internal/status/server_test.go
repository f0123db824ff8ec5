package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/notecam/fieldsync/internal/model"
)

func startTestServer(t *testing.T, snapshot StatusFunc) (*Server, string) {
	t.Helper()

	// Port 0 lets the kernel pick a free port; Addr() reports it.
	s := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)}, snapshot)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })

	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		t.Fatalf("unexpected listen address %q: %v", s.Addr(), err)
	}
	return s, net.JoinHostPort("127.0.0.1", port)
}

func TestHealthEndpoint(t *testing.T) {
	_, addr := startTestServer(t, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestClientReceivesSnapshotAndBroadcast(t *testing.T) {
	snapshot := func() model.SyncStatus {
		return model.SyncStatus{QueueLength: 3, Connection: "online"}
	}
	s, addr := startTestServer(t, snapshot)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First message is the seeded status snapshot.
	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != MessageTypeStatus {
		t.Fatalf("expected %s, got %s", MessageTypeStatus, msg.Type)
	}
	var st model.SyncStatus
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if st.QueueLength != 3 {
		t.Errorf("expected seeded queue length 3, got %d", st.QueueLength)
	}

	// A finished cycle reaches the connected client.
	s.CycleFinished(model.CycleRecord{Success: true, ItemsSynced: 5}, snapshot())

	_, raw, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != MessageTypeCycle {
		t.Fatalf("expected %s, got %s", MessageTypeCycle, msg.Type)
	}
	var data CycleData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode cycle data: %v", err)
	}
	if !data.Cycle.Success || data.Cycle.ItemsSynced != 5 {
		t.Errorf("unexpected cycle data: %+v", data.Cycle)
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	s, _ := startTestServer(t, nil)

	// No clients connected; broadcasting must not block or panic.
	s.ZoneFlagged("NF-01")
	s.CycleFinished(model.CycleRecord{Success: true}, model.SyncStatus{})

	if n := s.ClientCount(); n != 0 {
		t.Errorf("expected 0 clients, got %d", n)
	}
}
