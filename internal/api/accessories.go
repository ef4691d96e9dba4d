package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/history"
)

// maxQueryParamLen bounds id and kind path segments.
const maxQueryParamLen = 128

// AccessoryResponse describes one accessory and its current values.
type AccessoryResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Type      accessory.DeviceType   `json:"type"`
	ColorMode accessory.ColorMode    `json:"color_mode,omitempty"`
	Kinds     []accessory.Kind       `json:"kinds"`
	Values    map[accessory.Kind]int `json:"values"`
}

// ValueResponse is the body of a value read.
type ValueResponse struct {
	AccessoryID string         `json:"accessory_id"`
	Kind        accessory.Kind `json:"kind"`
	Value       int            `json:"value"`
}

// SetValueRequest is the body of a value write.
type SetValueRequest struct {
	Value *int `json:"value"`
}

func accessoryResponse(a *accessory.Accessory) AccessoryResponse {
	def := a.Definition()
	return AccessoryResponse{
		ID:        a.ID(),
		Name:      a.Name(),
		Type:      def.Type,
		ColorMode: def.ColorMode,
		Kinds:     a.Kinds(),
		Values:    a.Snapshot(),
	}
}

// handleListAccessories returns every accessory with a snapshot of its values.
// It never queries devices.
func (s *Server) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	list := s.accessories.List()
	out := make([]AccessoryResponse, 0, len(list))
	for _, a := range list {
		out = append(out, accessoryResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": out,
		"count":       len(out),
	})
}

// handleGetAccessory returns one accessory.
func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, accessoryResponse(a))
}

// handleGetValue reads one property. A stale write that the device does not
// confirm in time yields 503 rather than a guessed value.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindParam(w, r)
	if !ok {
		return
	}

	value, err := a.Get(r.Context(), kind)
	if err != nil {
		if !writeAccessoryError(w, err) {
			s.logger.Error("reading accessory value failed", "accessory", a.ID(), "kind", kind, "error", err)
			writeInternalError(w, "failed to read value")
		}
		return
	}

	writeJSON(w, http.StatusOK, ValueResponse{AccessoryID: a.ID(), Kind: kind, Value: value})
}

// handleSetValue writes one property. The value is clamped to the kind's
// range and sent without waiting for the device. The response carries the
// value as recorded, at the device's resolution.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindParam(w, r)
	if !ok {
		return
	}

	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := a.Set(r.Context(), kind, *req.Value); err != nil {
		if !writeAccessoryError(w, err) {
			s.logger.Warn("writing accessory value failed", "accessory", a.ID(), "kind", kind, "error", err)
			writeUnavailable(w, "failed to send value")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ValueResponse{AccessoryID: a.ID(), Kind: kind, Value: a.Snapshot()[kind]})
}

// handleGetHistory returns recorded value changes of an accessory, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}

	q := history.Query{AccessoryID: a.ID()}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := accessory.ParseKind(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		q.Kind = kind
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	if s.history == nil {
		writeUnavailable(w, "value history disabled")
		return
	}

	entries, err := s.history.History(r.Context(), q)
	if err != nil {
		s.logger.Error("loading value history failed", "accessory", a.ID(), "error", err)
		writeInternalError(w, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessory_id": a.ID(),
		"history":      entries,
		"count":        len(entries),
	})
}

// lookupAccessory resolves the {id} path parameter, writing the error
// response itself when it fails.
func (s *Server) lookupAccessory(w http.ResponseWriter, r *http.Request) (*accessory.Accessory, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid accessory id")
		return nil, false
	}
	a, err := s.accessories.Get(id)
	if err != nil {
		if errors.Is(err, accessory.ErrNotFound) {
			writeNotFound(w, "accessory not found")
			return nil, false
		}
		writeInternalError(w, "failed to get accessory")
		return nil, false
	}
	return a, true
}

func parseKindParam(w http.ResponseWriter, r *http.Request) (accessory.Kind, bool) {
	raw := chi.URLParam(r, "kind")
	if len(raw) > maxQueryParamLen {
		writeBadRequest(w, "invalid property kind")
		return "", false
	}
	kind, err := accessory.ParseKind(raw)
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", false
	}
	return kind, true
}
