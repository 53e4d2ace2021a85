package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"servidores/api/internal/liveview"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
)

type scopeJSON struct {
	Base   string `json:"base"`
	Module *int   `json:"module,omitempty"`
	Day    string `json:"day"`
	Week   int    `json:"week,omitempty"`
}

type fetchErrorJSON struct {
	Read  liveview.Read `json:"read"`
	Error string        `json:"error"`
}

type actionErrorJSON struct {
	Action liveview.Action `json:"action"`
	ItemID string          `json:"itemId"`
	Error  string          `json:"error"`
}

type panelResponse struct {
	Scope       *scopeJSON               `json:"scope"`
	Items       []liveview.PendingItem   `json:"items"`
	Confirmed   []liveview.ConfirmedItem `json:"confirmed"`
	Archived    []liveview.ArchivedItem  `json:"archived"`
	Selected    string                   `json:"selected,omitempty"`
	Loading     bool                     `json:"loading"`
	Reactivated []string                 `json:"reactivated,omitempty"`
	Errors      []fetchErrorJSON         `json:"errors,omitempty"`
	ActionError *actionErrorJSON         `json:"actionError,omitempty"`
}

func panelJSON(snap liveview.Snapshot) panelResponse {
	resp := panelResponse{
		Items:       snap.Items,
		Confirmed:   snap.Confirmed,
		Archived:    snap.Archived,
		Selected:    snap.Selected,
		Loading:     snap.Loading,
		Reactivated: snap.Reactivated,
	}
	if resp.Items == nil {
		resp.Items = []liveview.PendingItem{}
	}
	if snap.HasScope {
		scope := &scopeJSON{Base: string(snap.Scope.Base), Day: snap.Scope.Day, Week: snap.Scope.Week}
		if snap.Scope.HasModule {
			module := snap.Scope.Module
			scope.Module = &module
		}
		resp.Scope = scope
	}
	for _, fe := range snap.FetchErrors {
		resp.Errors = append(resp.Errors, fetchErrorJSON{Read: fe.Read, Error: fe.Err.Error()})
	}
	if ae := snap.ActionError; ae != nil {
		resp.ActionError = &actionErrorJSON{Action: ae.Action, ItemID: ae.ItemID, Error: ae.Err.Error()}
	}
	return resp
}

func (s *HTTPServer) handlePanel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Panel(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panelJSON(snap))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Refresh(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panelJSON(snap))
}

func (s *HTTPServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID string `json:"itemId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	snap, err := s.service.Select(r.Context(), sessionFrom(r.Context()), body.ItemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panelJSON(snap))
}

func (s *HTTPServer) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID  string `json:"itemId"`
		Outcome string `json:"outcome"`
		Notes   string `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	snap, err := s.service.SubmitOutcome(r.Context(), sessionFrom(r.Context()), body.ItemID, store.Outcome(body.Outcome), body.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panelJSON(snap))
}

func (s *HTTPServer) handleAttendance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID   string `json:"itemId"`
		Attended *bool  `json:"attended"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Attended == nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "attended is required", nil)
		return
	}
	snap, err := s.service.MarkAttendance(r.Context(), sessionFrom(r.Context()), body.ItemID, *body.Attended)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panelJSON(snap))
}

func (s *HTTPServer) handleArchived(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Archived(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleReactivate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	itemID := chi.URLParam(r, "itemId")
	if err := s.service.Reactivate(r.Context(), sessionFrom(r.Context()), itemID, body.Notes); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "itemId": itemID})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.SearchPeople(r.Context(), sessionFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if resp.Results == nil {
		resp.Results = []search.Person{}
	}
	writeJSON(w, http.StatusOK, resp)
}
