package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"pairs/internal/game"
	"pairs/internal/layout"
	"pairs/internal/score"
	"pairs/internal/session"
	"pairs/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts    *httptest.Server
	mgr   *session.Manager
	store *storage.Store
}

var testLayouts = []layout.Layout{{Cols: 2, Rows: 2}, {Cols: 3, Rows: 2}}

func testManager(store *storage.Store) *session.Manager {
	return session.NewManager(store, storage.NewScoreStore(store), session.Options{
		Game: game.Options{
			Layout:        layout.Layout{Cols: 2, Rows: 2},
			FlipDuration:  2 * time.Millisecond,
			SettleDelay:   time.Millisecond,
			MismatchDelay: 2 * time.Millisecond,
			Clock:         score.ClockFunc(func() float64 { return 0 }),
		},
		Score:  score.DefaultConfig(),
		Logger: zerolog.Nop(),
	})
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	mgr := testManager(store)
	t.Cleanup(func() {
		mgr.Shutdown(context.Background())
		store.Close()
	})

	srv := New(mgr, testLayouts, zerolog.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, mgr: mgr, store: store}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func createSessionViaAPI(t *testing.T, ts *httptest.Server, cols, rows int) createSessionResponse {
	t.Helper()
	body := fmt.Sprintf(`{"cols":%d,"rows":%d}`, cols, rows)
	resp, data := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}
	var result createSessionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func selectViaAPI(t *testing.T, ts *httptest.Server, code string, index int) bool {
	t.Helper()
	resp, data := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+code+"/select", fmt.Sprintf(`{"index":%d}`, index))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var sr selectResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		t.Fatalf("decode select: %v", err)
	}
	return sr.Accepted
}

func getState(t *testing.T, ts *httptest.Server, code string) session.State {
	t.Helper()
	resp, data := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+code, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

// waitState polls the session until cond holds.
func waitState(t *testing.T, ts *httptest.Server, code string, cond func(session.State) bool) session.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := getState(t, ts, code)
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never satisfied condition: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func matched(st session.State) int {
	n := 0
	for _, c := range st.Cards {
		if c.Matched {
			n++
		}
	}
	return n
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, code string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/sessions/" + code + "/ws"
}

// wsConnect dials a WebSocket, joins, and waits for the joined reply.
// The caller is responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server, code, playerID string) (*websocket.Conn, joinedPayload) {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, code), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if err := sendWS(ctx, conn, "join", joinPayload{PlayerID: playerID}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	msg := readUntil(t, ctx, conn, msgJoined)
	var jp joinedPayload
	if err := json.Unmarshal(msg.Payload, &jp); err != nil {
		t.Fatalf("unmarshal joined payload: %v", err)
	}
	return conn, jp
}

// sendWS marshals and sends a typed WebSocket message. Returns an error on failure.
func sendWS(ctx context.Context, conn *websocket.Conn, msgType string, payload any) error {
	p, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(WSMessage{Type: msgType, Payload: p})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// readWS reads and unmarshals a single WebSocket message. Returns an error on failure.
func readWS(ctx context.Context, conn *websocket.Conn) (WSMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return WSMessage{}, err
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return WSMessage{}, err
	}
	return msg, nil
}

// readUntil skips messages until one of type msgType arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) WSMessage {
	t.Helper()
	for {
		msg, err := readWS(ctx, conn)
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

// readStateWhere skips messages until a state satisfying cond arrives.
func readStateWhere(t *testing.T, ctx context.Context, conn *websocket.Conn, cond func(session.State) bool) session.State {
	t.Helper()
	for {
		msg := readUntil(t, ctx, conn, session.MsgState)
		var st session.State
		if err := json.Unmarshal(msg.Payload, &st); err != nil {
			t.Fatalf("unmarshal state payload: %v", err)
		}
		if cond(st) {
			return st
		}
	}
}

// readError skips messages until an error arrives and returns its text.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	msg := readUntil(t, ctx, conn, session.MsgError)
	var ep errorPayload
	if err := json.Unmarshal(msg.Payload, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	return ep.Message
}

func containsPlayer(players []string, id string) bool {
	for _, p := range players {
		if p == id {
			return true
		}
	}
	return false
}
