package liveview

import (
	"context"
	"errors"
	"sync"

	"servidores/api/internal/assignment"
	"servidores/api/internal/store"
)

type panelData struct {
	history   []store.HistoryRow
	eligible  []store.EligibleRow
	confirmed []store.ConfirmedRow
	archived  []store.ArchivedRow
}

type outcomeCall struct {
	ItemID  string
	Scope   assignment.Scope
	Outcome store.Outcome
	ActorID string
}

// fakeBackend serves canned rows per scope. Gates block a read until closed.
type fakeBackend struct {
	mu sync.Mutex

	data        map[assignment.Scope]*panelData
	historyGate map[assignment.Scope]chan struct{}
	commitGate  chan struct{}
	eligibleErr error
	commitErr   error
	minimal     map[string]store.MinimalFields

	historyCalls   int
	confirmedCalls int
	lookupCalls    int
	outcomes       []outcomeCall
	attendance     []string
	reactivations  []store.ReactivateRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		data:        make(map[assignment.Scope]*panelData),
		historyGate: make(map[assignment.Scope]chan struct{}),
		minimal:     make(map[string]store.MinimalFields),
	}
}

func (f *fakeBackend) scope(s assignment.Scope) *panelData {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[s]
	if !ok {
		d = &panelData{}
		f.data[s] = d
	}
	return d
}

func (f *fakeBackend) setPanel(s assignment.Scope, history []store.HistoryRow, eligible []store.EligibleRow) {
	d := f.scope(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	d.history, d.eligible = history, eligible
}

func (f *fakeBackend) setArchived(s assignment.Scope, rows []store.ArchivedRow) {
	d := f.scope(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	d.archived = rows
}

func (f *fakeBackend) setConfirmed(s assignment.Scope, rows []store.ConfirmedRow) {
	d := f.scope(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	d.confirmed = rows
}

func (f *fakeBackend) counts() (history, confirmed, lookups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls, f.confirmedCalls, f.lookupCalls
}

func (f *fakeBackend) History(ctx context.Context, s assignment.Scope) ([]store.HistoryRow, error) {
	d := f.scope(s)
	f.mu.Lock()
	f.historyCalls++
	gate := f.historyGate[s]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.HistoryRow(nil), d.history...), nil
}

func (f *fakeBackend) Eligible(_ context.Context, s assignment.Scope) ([]store.EligibleRow, error) {
	d := f.scope(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eligibleErr != nil {
		return nil, f.eligibleErr
	}
	return append([]store.EligibleRow(nil), d.eligible...), nil
}

func (f *fakeBackend) Confirmed(_ context.Context, s assignment.Scope) ([]store.ConfirmedRow, error) {
	d := f.scope(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmedCalls++
	return append([]store.ConfirmedRow(nil), d.confirmed...), nil
}

func (f *fakeBackend) Archived(_ context.Context, s assignment.Scope) ([]store.ArchivedRow, error) {
	d := f.scope(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ArchivedRow(nil), d.archived...), nil
}

func (f *fakeBackend) commit(ctx context.Context) error {
	f.mu.Lock()
	gate, err := f.commitGate, f.commitErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) RecordOutcome(ctx context.Context, itemID string, s assignment.Scope, outcome store.Outcome, _, actorID string) error {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, outcomeCall{ItemID: itemID, Scope: s, Outcome: outcome, ActorID: actorID})
	f.mu.Unlock()
	return f.commit(ctx)
}

func (f *fakeBackend) RecordAttendance(ctx context.Context, itemID string, _ bool, _ string) error {
	f.mu.Lock()
	f.attendance = append(f.attendance, itemID)
	f.mu.Unlock()
	return f.commit(ctx)
}

func (f *fakeBackend) Reactivate(ctx context.Context, req store.ReactivateRequest) error {
	f.mu.Lock()
	f.reactivations = append(f.reactivations, req)
	f.mu.Unlock()
	return f.commit(ctx)
}

func (f *fakeBackend) LookupMinimal(_ context.Context, id string) (store.MinimalFields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	fields, ok := f.minimal[id]
	if !ok {
		return store.MinimalFields{}, errors.New("not found")
	}
	return fields, nil
}
