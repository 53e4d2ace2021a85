package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"servidores/api/internal/auth"
	"servidores/api/internal/liveview"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
)

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, body)
	}
	return payload
}

func itemIDs(t *testing.T, payload map[string]any) []string {
	t.Helper()
	raw, ok := payload["items"].([]any)
	if !ok {
		t.Fatalf("items missing: %v", payload)
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		ids = append(ids, item.(map[string]any)["itemId"].(string))
	}
	return ids
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ok := decode(t, rr.Body.Bytes())["ok"]; ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	env.store.pingFn = func(context.Context) error { return errors.New("connection refused") }
	rr = env.do(t, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	payload := decode(t, rr.Body.Bytes())
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
	db := payload["checks"].(map[string]any)["database"].(map[string]any)
	if db["error"] != "connection refused" {
		t.Fatalf("expected database error, got %v", db)
	}
}

func TestPanelRequiresSession(t *testing.T) {
	env := newTestEnv(t, map[string]string{"u1": "timoteo"})

	cases := map[string]string{
		"missing":      "",
		"malformed":    "Bearer nope",
		"unknown user": bearer(t, "ghost", "timoteo"),
		"not bearer":   "Basic dTE6cHc=",
	}
	for name, authorization := range cases {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/panel", authorization, "")
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPanelReturnsScopedItems(t *testing.T) {
	env := newTestEnv(t, map[string]string{"u1": "timoteo"})
	env.backend.history = []store.HistoryRow{
		{ItemID: "B", Name: "Beto", Outcomes: [3]store.Outcome{store.OutcomeNoAnswer}},
		{ItemID: "A", Name: "Ana"},
		{ItemID: "C", Name: "Carla"},
	}
	env.backend.eligible = []store.EligibleRow{{ItemID: "A"}, {ItemID: "B"}, {ItemID: "D"}}

	rr := env.do(t, http.MethodGet, "/api/panel", bearer(t, "u1", "timoteo"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decode(t, rr.Body.Bytes())
	if got := fmt.Sprint(itemIDs(t, payload)); got != "[A B]" {
		t.Fatalf("expected items [A B], got %s", got)
	}
	scope := payload["scope"].(map[string]any)
	if scope["base"] != "Semillas" || scope["module"] != float64(2) || scope["week"] != float64(1) {
		t.Fatalf("unexpected scope %v", scope)
	}
	first := payload["items"].([]any)[0].(map[string]any)
	if first["annotation"] != "new" {
		t.Fatalf("expected first load to annotate new, got %v", first["annotation"])
	}
}

func TestPanelRBAC(t *testing.T) {
	env := newTestEnv(t, map[string]string{"dir": "director", "log": "logistica"})
	for _, user := range []string{"dir", "log"} {
		rr := env.do(t, http.MethodGet, "/api/panel", bearer(t, user, ""), "")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected status 403, got %d", user, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/api/panel/archived/item-1/reactivate", bearer(t, "log", ""), `{}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("logistics reactivate: expected status 403, got %d", rr.Code)
	}
}

func TestSubmitOutcomeStatuses(t *testing.T) {
	env := newTestEnv(t, map[string]string{"u1": "timoteo"})
	env.backend.history = []store.HistoryRow{{ItemID: "A", Name: "Ana"}, {ItemID: "B", Name: "Beto"}}
	env.backend.eligible = []store.EligibleRow{{ItemID: "A"}, {ItemID: "B"}}
	env.backend.recordOutcomeFn = func(_ context.Context, itemID string, _ store.Outcome) error {
		if itemID == "B" {
			return fmt.Errorf("record outcome: %w", store.ErrOutOfScope)
		}
		return nil
	}
	token := bearer(t, "u1", "timoteo")

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "accepted", body: `{"itemId":"A","outcome":"confirmo_asistencia"}`, status: http.StatusOK},
		{name: "missing outcome", body: `{"itemId":"A"}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "unknown outcome", body: `{"itemId":"A","outcome":"tal_vez"}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "item not held", body: `{"itemId":"Z","outcome":"no_contesta"}`, status: http.StatusConflict, code: "INVALID_STATE"},
		{name: "backend failure", body: `{"itemId":"B","outcome":"no_contesta"}`, status: http.StatusBadGateway, code: "ACTION_FAILED"},
		{name: "bad json", body: `{`, status: http.StatusBadRequest, code: "INVALID_BODY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/panel/outcomes", token, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.code != "" {
				if code := decode(t, rr.Body.Bytes())["code"]; code != tc.code {
					t.Fatalf("expected code %s, got %v", tc.code, code)
				}
			}
		})
	}
}

func TestAttendanceRequiresFlag(t *testing.T) {
	env := newTestEnv(t, map[string]string{"u1": "maestro"})
	rr := env.do(t, http.MethodPost, "/api/panel/attendance", bearer(t, "u1", ""), `{"itemId":"A"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestReactivateThroughPanel(t *testing.T) {
	env := newTestEnv(t, map[string]string{"u1": "timoteo"})
	env.backend.archived = []store.ArchivedRow{{ItemID: "R1", PersonID: "P1", Name: "Rosa", Day: "domingo"}}
	token := bearer(t, "u1", "")

	rr := env.do(t, http.MethodGet, "/api/panel/archived", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := fmt.Sprint(itemIDs(t, decode(t, rr.Body.Bytes()))); got != "[R1]" {
		t.Fatalf("expected archived [R1], got %s", got)
	}

	rr = env.do(t, http.MethodPost, "/api/panel/archived/R1/reactivate", token, `{"notes":"volvió"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	if len(env.backend.reactivated) != 1 || env.backend.reactivated[0].Notes != "volvió" || env.backend.reactivated[0].ActorID != "u1" {
		t.Fatalf("unexpected reactivations %+v", env.backend.reactivated)
	}
}

func TestDirectorReactivatesDirectly(t *testing.T) {
	env := newTestEnv(t, map[string]string{"dir": "director"})
	env.store.archivedByIDFn = func(_ context.Context, id string) (store.ArchivedRow, error) {
		if id != "R1" {
			return store.ArchivedRow{}, fmt.Errorf("archived item %s: %w", id, store.ErrNotFound)
		}
		return store.ArchivedRow{ItemID: "R1", PersonID: "P1", Name: "Rosa", Day: "sabado"}, nil
	}
	var got store.ReactivateRequest
	env.store.reactivateFn = func(_ context.Context, req store.ReactivateRequest) error {
		got = req
		return nil
	}
	token := bearer(t, "dir", "")

	rr := env.do(t, http.MethodPost, "/api/panel/archived/R1/reactivate", token, `{"notes":"  ok  "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	want := store.ReactivateRequest{ItemID: "R1", PersonID: "P1", Name: "Rosa", Day: "sabado", Notes: "ok", ActorID: "dir"}
	if got != want {
		t.Fatalf("reactivate request = %+v, want %+v", got, want)
	}
	if env.search.invalidated != 1 {
		t.Fatalf("expected search cache invalidated once, got %d", env.search.invalidated)
	}

	rr = env.do(t, http.MethodPost, "/api/panel/archived/R9/reactivate", token, `{}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/panel/archived", token, "")
	if rr.Code != http.StatusOK || len(itemIDs(t, decode(t, rr.Body.Bytes()))) != 0 {
		t.Fatalf("expected empty archived list for director, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestSearchPeople(t *testing.T) {
	env := newTestEnv(t, map[string]string{"log": "logistica"})
	var got search.Query
	env.search.searchFn = func(_ context.Context, q search.Query) (search.Response, error) {
		got = q
		return search.Response{Results: []search.Person{{ID: "P1", Name: "Ana María"}}, Total: 1, Query: q.Text, Source: "postgres"}, nil
	}
	token := bearer(t, "log", "")

	rr := env.do(t, http.MethodGet, "/api/people/search?q=%20%C3%81na%20%20Mar%C3%ADa%20", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got.Text != "ana maria" || got.Limit != 20 {
		t.Fatalf("unexpected query %+v", got)
	}
	payload := decode(t, rr.Body.Bytes())
	if payload["source"] != "postgres" || payload["total"] != float64(1) {
		t.Fatalf("unexpected payload %v", payload)
	}

	got = search.Query{}
	rr = env.do(t, http.MethodGet, "/api/people/search?q=an", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for a short query, got %d", rr.Code)
	}
	if got != (search.Query{}) {
		t.Fatalf("short query reached the searcher: %+v", got)
	}
	payload = decode(t, rr.Body.Bytes())
	results, ok := payload["results"].([]any)
	if !ok || len(results) != 0 || payload["total"] != float64(0) {
		t.Fatalf("expected an empty result list, got %v", payload)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), http.StatusTeapot},
		{fmt.Errorf("wrap: %w", liveview.ErrValidation), http.StatusUnprocessableEntity},
		{liveview.ErrNotFound, http.StatusConflict},
		{&liveview.ActionError{Action: liveview.ActionAttendance, ItemID: "A", Err: store.ErrNotFound}, http.StatusBadGateway},
		{fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{store.ErrOutOfScope, http.StatusForbidden},
		{auth.ErrExpiredToken, http.StatusUnauthorized},
		{liveview.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if status, _, _, _ := mapError(tc.err); status != tc.status {
			t.Errorf("mapError(%v) = %d, want %d", tc.err, status, tc.status)
		}
	}
}
