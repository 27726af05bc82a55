package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"pairs/internal/layout"
	"pairs/internal/session"
)

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	resp, data := doJSON(t, http.MethodGet, env.ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(data) != "{\"ok\":true}\n" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestListLayouts(t *testing.T) {
	env := setupTestEnv(t)
	resp, data := doJSON(t, http.MethodGet, env.ts.URL+"/api/layouts", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var layouts []layout.Layout
	if err := json.Unmarshal(data, &layouts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(layouts) != 2 || layouts[1] != (layout.Layout{Cols: 3, Rows: 2}) {
		t.Fatalf("unexpected layouts %v", layouts)
	}
}

func TestCreateSessionValid(t *testing.T) {
	env := setupTestEnv(t)
	result := createSessionViaAPI(t, env.ts, 3, 2)
	if result.Code == "" {
		t.Fatal("expected non-empty code")
	}
	if result.State.Cols != 3 || result.State.Rows != 2 {
		t.Fatalf("expected 3x2, got %dx%d", result.State.Cols, result.State.Rows)
	}
	if len(result.State.Cards) != 6 {
		t.Fatalf("expected 6 cards, got %d", len(result.State.Cards))
	}
	if result.State.CardSize.W <= 0 || result.State.CardSize.H <= 0 {
		t.Fatalf("expected a card size, got %+v", result.State.CardSize)
	}
}

func TestCreateSessionWithoutBody(t *testing.T) {
	env := setupTestEnv(t)
	resp, data := doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}
}

func TestCreateSessionBadLayouts(t *testing.T) {
	env := setupTestEnv(t)
	for _, body := range []string{
		`{"cols":3,"rows":3}`,
		`{"cols":-1,"rows":2}`,
		`{"cols":`,
		`{"cols":100000,"rows":100000}`,
		`{"cols":4294967296,"rows":4294967296}`,
	} {
		resp, data := doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", body, resp.StatusCode, data)
		}
	}
	if n := len(env.mgr.List()); n != 0 {
		t.Fatalf("expected no sessions, got %d", n)
	}
}

func TestListSessions(t *testing.T) {
	env := setupTestEnv(t)
	createSessionViaAPI(t, env.ts, 2, 2)
	createSessionViaAPI(t, env.ts, 2, 2)

	resp, data := doJSON(t, http.MethodGet, env.ts.URL+"/api/sessions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var infos []session.Info
	if err := json.Unmarshal(data, &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	env := setupTestEnv(t)
	resp, _ := doJSON(t, http.MethodGet, env.ts.URL+"/api/sessions/nonexistent", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetSessionHidesPairs(t *testing.T) {
	env := setupTestEnv(t)
	code := createSessionViaAPI(t, env.ts, 2, 2).Code

	st := getState(t, env.ts, code)
	for _, c := range st.Cards {
		if c.PairID != nil {
			t.Fatalf("card %d leaks its pair id", c.Index)
		}
	}
	if st.Status != session.StatusPlaying {
		t.Fatalf("expected playing, got %s", st.Status)
	}
}

func TestSelectViaAPI(t *testing.T) {
	env := setupTestEnv(t)
	code := createSessionViaAPI(t, env.ts, 2, 2).Code

	if !selectViaAPI(t, env.ts, code, 0) {
		t.Fatal("expected first select to be accepted")
	}
	if selectViaAPI(t, env.ts, code, 0) {
		t.Fatal("expected repeat select to be rejected")
	}
	if selectViaAPI(t, env.ts, code, 42) {
		t.Fatal("expected out-of-range select to be rejected")
	}
	if !selectViaAPI(t, env.ts, code, 1) {
		t.Fatal("expected second select to be accepted")
	}
	st := waitState(t, env.ts, code, func(st session.State) bool { return matched(st) == 2 })
	if st.Score.Current != 100 {
		t.Fatalf("expected score 100, got %d", st.Score.Current)
	}
	if st.Cards[0].PairID == nil || *st.Cards[0].PairID != 0 {
		t.Fatal("expected matched card to show its pair")
	}
}

func TestSelectRequiresIndex(t *testing.T) {
	env := setupTestEnv(t)
	code := createSessionViaAPI(t, env.ts, 2, 2).Code
	resp, _ := doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/select", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNewGameViaAPI(t *testing.T) {
	env := setupTestEnv(t)
	code := createSessionViaAPI(t, env.ts, 2, 2).Code
	before := getState(t, env.ts, code).Generation

	resp, data := doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/games", `{"cols":3,"rows":2}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var st session.State
	json.Unmarshal(data, &st)
	if st.Cols != 3 || st.Generation <= before {
		t.Fatalf("expected a fresh 3x2 board, got %dx%d gen %d", st.Cols, st.Rows, st.Generation)
	}

	resp, _ = doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/games", `{"cols":3,"rows":3}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for odd layout, got %d", resp.StatusCode)
	}
}

func TestSaveAndLoadViaAPI(t *testing.T) {
	env := setupTestEnv(t)
	code := createSessionViaAPI(t, env.ts, 2, 2).Code

	resp, _ := doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/load", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any save, got %d", resp.StatusCode)
	}

	selectViaAPI(t, env.ts, code, 0)
	selectViaAPI(t, env.ts, code, 1)
	waitState(t, env.ts, code, func(st session.State) bool { return matched(st) == 2 })

	resp, data := doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/save", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", resp.StatusCode, data)
	}

	doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/games", `{"cols":3,"rows":2}`)
	resp, data = doJSON(t, http.MethodPost, env.ts.URL+"/api/sessions/"+code+"/load", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var st session.State
	json.Unmarshal(data, &st)
	if st.Cols != 2 || st.Rows != 2 || matched(st) != 2 || st.Score.Current != 100 {
		t.Fatalf("expected the saved 2x2 board, got %+v", st)
	}
}

func TestDeleteSession(t *testing.T) {
	env := setupTestEnv(t)
	code := createSessionViaAPI(t, env.ts, 2, 2).Code

	resp, _ := doJSON(t, http.MethodDelete, env.ts.URL+"/api/sessions/"+code, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, env.ts.URL+"/api/sessions/"+code, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, env.ts.URL+"/api/sessions/"+code, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for second delete, got %d", resp.StatusCode)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := setupTestEnv(t)
	resp, _ := doJSON(t, http.MethodGet, env.ts.URL+"/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
