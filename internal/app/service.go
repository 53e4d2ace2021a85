package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"servidores/api/internal/assignment"
	"servidores/api/internal/auth"
	"servidores/api/internal/liveview"
	"servidores/api/internal/rbac"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
)

type Session struct {
	UserID   string
	UserName string
	Role     rbac.Role
}

// dataStore is the slice of store.PostgresStore the service reads outside a live view.
type dataStore interface {
	Ping(context.Context) error
	GetPortalUser(context.Context, string) (store.PortalUser, error)
	Assignments(context.Context, string) ([]assignment.RoleAssignment, error)
	ArchivedByID(context.Context, string) (store.ArchivedRow, error)
	Reactivate(context.Context, store.ReactivateRequest) error
}

type views interface {
	Open(userID string, scope assignment.Scope, hasScope bool) *liveview.View
}

type peopleSearch interface {
	Search(context.Context, search.Query) (search.Response, error)
	Invalidate(context.Context)
}

type Service struct {
	store    dataStore
	views    views
	search   peopleSearch
	verifier *auth.Verifier
	logger   *zap.Logger

	searchLimit  int
	minQueryLen  int
	awaitTimeout time.Duration
}

type ServiceOptions struct {
	Store    dataStore
	Views    views
	Search   peopleSearch
	Verifier *auth.Verifier
	Logger   *zap.Logger
	// SearchLimit caps people search results; MinQueryLen rejects shorter queries.
	SearchLimit int
	MinQueryLen int
}

func NewService(opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 20
	}
	if opts.MinQueryLen <= 0 {
		opts.MinQueryLen = 3
	}
	return &Service{
		store:        opts.Store,
		views:        opts.Views,
		search:       opts.Search,
		verifier:     opts.Verifier,
		logger:       opts.Logger.Named("service"),
		searchLimit:  opts.SearchLimit,
		minQueryLen:  opts.MinQueryLen,
		awaitTimeout: 5 * time.Second,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SessionFromToken verifies the bearer token and loads the portal user it names. The
// user's stored role wins over the role claimed in the token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetPortalUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	role := rbac.Normalize(user.Role)
	if role == rbac.RoleNone {
		role = rbac.Normalize(claims.Role)
	}
	name := user.DisplayName
	if name == "" {
		name = claims.Name
	}
	return Session{UserID: user.ID, UserName: name, Role: role}, nil
}

func (s *Service) authorize(session Session, action rbac.Action) error {
	if !rbac.Can(session.Role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
	}
	return nil
}

// view resolves the caller's scope from their assignments and returns their live view,
// moved to that scope if it changed since the last request.
func (s *Service) view(ctx context.Context, session Session) (*liveview.View, error) {
	records, err := s.store.Assignments(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	scope, ok := assignment.Resolve(records)
	return s.views.Open(session.UserID, scope, ok), nil
}

func (s *Service) await(ctx context.Context, view *liveview.View) (liveview.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.awaitTimeout)
	defer cancel()
	snap, err := view.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		// a slow read still answers with what is held; the snapshot shows Loading
		return snap, nil
	}
	return snap, err
}

func (s *Service) Panel(ctx context.Context, session Session) (liveview.Snapshot, error) {
	if err := s.authorize(session, rbac.ActionPanel); err != nil {
		return liveview.Snapshot{}, err
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return liveview.Snapshot{}, err
	}
	return s.await(ctx, view)
}

func (s *Service) Refresh(ctx context.Context, session Session) (liveview.Snapshot, error) {
	if err := s.authorize(session, rbac.ActionPanel); err != nil {
		return liveview.Snapshot{}, err
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return liveview.Snapshot{}, err
	}
	view.Refresh(false)
	return s.await(ctx, view)
}

func (s *Service) Select(ctx context.Context, session Session, itemID string) (liveview.Snapshot, error) {
	if err := s.authorize(session, rbac.ActionPanel); err != nil {
		return liveview.Snapshot{}, err
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return liveview.Snapshot{}, err
	}
	if _, err := s.await(ctx, view); err != nil {
		return liveview.Snapshot{}, err
	}
	if err := view.Select(ctx, strings.TrimSpace(itemID)); err != nil {
		return liveview.Snapshot{}, err
	}
	return view.Snapshot(), nil
}

func (s *Service) SubmitOutcome(ctx context.Context, session Session, itemID string, outcome store.Outcome, notes string) (liveview.Snapshot, error) {
	if err := s.authorize(session, rbac.ActionRecordCall); err != nil {
		return liveview.Snapshot{}, err
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return liveview.Snapshot{}, err
	}
	if _, err := s.await(ctx, view); err != nil {
		return liveview.Snapshot{}, err
	}
	if err := view.Submit(ctx, strings.TrimSpace(itemID), outcome, strings.TrimSpace(notes)); err != nil {
		return liveview.Snapshot{}, err
	}
	return s.await(ctx, view)
}

func (s *Service) MarkAttendance(ctx context.Context, session Session, itemID string, attended bool) (liveview.Snapshot, error) {
	if err := s.authorize(session, rbac.ActionAttendance); err != nil {
		return liveview.Snapshot{}, err
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return liveview.Snapshot{}, err
	}
	if _, err := s.await(ctx, view); err != nil {
		return liveview.Snapshot{}, err
	}
	if err := view.MarkAttendance(ctx, strings.TrimSpace(itemID), attended); err != nil {
		return liveview.Snapshot{}, err
	}
	return s.await(ctx, view)
}

// Archived lists the caller's archived records. Roles without a scope see none.
func (s *Service) Archived(ctx context.Context, session Session) ([]liveview.ArchivedItem, error) {
	if err := s.authorize(session, rbac.ActionReactivate); err != nil {
		return nil, err
	}
	if !rbac.Can(session.Role, rbac.ActionPanel) {
		return []liveview.ArchivedItem{}, nil
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return nil, err
	}
	snap, err := s.await(ctx, view)
	if err != nil {
		return nil, err
	}
	return snap.Archived, nil
}

// Reactivate brings an archived record back. Panel roles go through their live view so
// the item is tagged as new; director and administrator write directly.
func (s *Service) Reactivate(ctx context.Context, session Session, itemID, notes string) error {
	if err := s.authorize(session, rbac.ActionReactivate); err != nil {
		return err
	}
	itemID, notes = strings.TrimSpace(itemID), strings.TrimSpace(notes)
	if itemID == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "itemId is required", nil)
	}

	if rbac.Can(session.Role, rbac.ActionPanel) {
		view, err := s.view(ctx, session)
		if err != nil {
			return err
		}
		if _, err := s.await(ctx, view); err != nil {
			return err
		}
		return view.Reactivate(ctx, itemID, notes)
	}

	row, err := s.store.ArchivedByID(ctx, itemID)
	if err != nil {
		return err
	}
	err = s.store.Reactivate(ctx, store.ReactivateRequest{
		ItemID:   row.ItemID,
		PersonID: row.PersonID,
		Name:     row.Name,
		Contact:  row.Contact,
		Day:      row.Day,
		Notes:    notes,
		ActorID:  session.UserID,
	})
	if err != nil {
		return &liveview.ActionError{Action: liveview.ActionReactivate, ItemID: itemID, Err: err}
	}
	s.logger.Info("record reactivated", zap.String("item_id", itemID), zap.String("actor_id", session.UserID))
	if s.search != nil {
		s.search.Invalidate(ctx)
	}
	return nil
}

func (s *Service) SearchPeople(ctx context.Context, session Session, query string) (search.Response, error) {
	if err := s.authorize(session, rbac.ActionSearch); err != nil {
		return search.Response{}, err
	}
	query = search.Normalize(query)
	// short queries match nothing and cost no lookup
	if len([]rune(query)) < s.minQueryLen {
		return search.Response{Results: []search.Person{}, Query: query}, nil
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(ctx, search.Query{Text: query, Limit: s.searchLimit})
}
