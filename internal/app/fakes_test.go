package app

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"servidores/api/internal/assignment"
	"servidores/api/internal/auth"
	"servidores/api/internal/liveview"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
)

const (
	testSecret = "test-secret-with-length"
	testIssuer = "servidores"
)

type fakeStore struct {
	pingFn          func(context.Context) error
	getPortalUserFn func(context.Context, string) (store.PortalUser, error)
	assignmentsFn   func(context.Context, string) ([]assignment.RoleAssignment, error)
	archivedByIDFn  func(context.Context, string) (store.ArchivedRow, error)
	reactivateFn    func(context.Context, store.ReactivateRequest) error
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetPortalUser(ctx context.Context, id string) (store.PortalUser, error) {
	if f.getPortalUserFn != nil {
		return f.getPortalUserFn(ctx, id)
	}
	return store.PortalUser{}, store.ErrNotFound
}

func (f *fakeStore) Assignments(ctx context.Context, id string) ([]assignment.RoleAssignment, error) {
	if f.assignmentsFn != nil {
		return f.assignmentsFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeStore) ArchivedByID(ctx context.Context, id string) (store.ArchivedRow, error) {
	if f.archivedByIDFn != nil {
		return f.archivedByIDFn(ctx, id)
	}
	return store.ArchivedRow{}, store.ErrNotFound
}

func (f *fakeStore) Reactivate(ctx context.Context, req store.ReactivateRequest) error {
	if f.reactivateFn != nil {
		return f.reactivateFn(ctx, req)
	}
	return nil
}

// fakeBackend answers the live view's reads from fixed rows.
type fakeBackend struct {
	mu              sync.Mutex
	history         []store.HistoryRow
	eligible        []store.EligibleRow
	confirmed       []store.ConfirmedRow
	archived        []store.ArchivedRow
	recordOutcomeFn func(context.Context, string, store.Outcome) error
	reactivated     []store.ReactivateRequest
}

func (f *fakeBackend) History(context.Context, assignment.Scope) ([]store.HistoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.HistoryRow(nil), f.history...), nil
}

func (f *fakeBackend) Eligible(context.Context, assignment.Scope) ([]store.EligibleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.EligibleRow(nil), f.eligible...), nil
}

func (f *fakeBackend) Confirmed(context.Context, assignment.Scope) ([]store.ConfirmedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ConfirmedRow(nil), f.confirmed...), nil
}

func (f *fakeBackend) Archived(context.Context, assignment.Scope) ([]store.ArchivedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ArchivedRow(nil), f.archived...), nil
}

func (f *fakeBackend) RecordOutcome(ctx context.Context, itemID string, _ assignment.Scope, outcome store.Outcome, _, _ string) error {
	if f.recordOutcomeFn != nil {
		return f.recordOutcomeFn(ctx, itemID, outcome)
	}
	return nil
}

func (f *fakeBackend) RecordAttendance(context.Context, string, bool, string) error {
	return nil
}

func (f *fakeBackend) Reactivate(_ context.Context, req store.ReactivateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactivated = append(f.reactivated, req)
	return nil
}

func (f *fakeBackend) LookupMinimal(context.Context, string) (store.MinimalFields, error) {
	return store.MinimalFields{}, store.ErrNotFound
}

type fakeSearch struct {
	searchFn    func(context.Context, search.Query) (search.Response, error)
	invalidated int
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Query: q.Text}, nil
}

func (f *fakeSearch) Invalidate(context.Context) {
	f.invalidated++
}

type testEnv struct {
	store   *fakeStore
	backend *fakeBackend
	search  *fakeSearch
	server  *HTTPServer
}

// newTestEnv wires a service over fakes. users maps user id to portal role.
func newTestEnv(t *testing.T, users map[string]string) *testEnv {
	t.Helper()
	env := &testEnv{
		store: &fakeStore{
			getPortalUserFn: func(_ context.Context, id string) (store.PortalUser, error) {
				role, ok := users[id]
				if !ok {
					return store.PortalUser{}, store.ErrNotFound
				}
				return store.PortalUser{ID: id, DisplayName: "User " + id, Role: role}, nil
			},
			assignmentsFn: func(context.Context, string) ([]assignment.RoleAssignment, error) {
				return []assignment.RoleAssignment{
					assignment.Contact{ID: 1, StageLabel: "Semillas 2", Day: "Domingo", Week: 1, Current: true, CreatedAt: time.Now()},
				}, nil
			},
		},
		backend: &fakeBackend{},
		search:  &fakeSearch{},
	}
	registry := liveview.NewRegistry(env.backend, nil, liveview.RegistryOptions{})
	t.Cleanup(registry.Close)

	svc := NewService(ServiceOptions{
		Store:    env.store,
		Views:    registry,
		Search:   env.search,
		Verifier: auth.NewVerifier(testSecret, testIssuer),
	})
	env.server = NewHTTPServer(svc, "*", nil)
	return env
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.NewClaims(userID, "User "+userID, role, testIssuer, time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, authorization, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}
