// Package server exposes the check evaluator and tuple/schema writes over
// plain HTTP+JSON, using structured slog logging and typed-error to
// status-code mapping so a caller can distinguish a bad request from an
// internal failure.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coreauthz/coreauthz"
)

// Handler serves the authorization decision core over HTTP.
type Handler struct {
	log    *slog.Logger
	client *coreauthz.Client
	mux    *http.ServeMux
}

// New builds a Handler backed by client, wiring every route.
func New(log *slog.Logger, client *coreauthz.Client) *Handler {
	h := &Handler{log: log, client: client, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /v1/check", h.handleCheck)
	h.mux.HandleFunc("POST /v1/tuples", h.handleWriteTuple)
	h.mux.HandleFunc("DELETE /v1/tuples", h.handleDeleteTuple)
	h.mux.HandleFunc("POST /v1/relation-configs", h.handleWriteRelationConfig)
	h.mux.HandleFunc("POST /v1/conditions", h.handleWriteConditionDefinition)
	h.mux.HandleFunc("GET /v1/objects", h.handleListObjects)
	h.mux.HandleFunc("GET /v1/subjects", h.handleListSubjects)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type checkRequest struct {
	ObjectType      string         `json:"object_type"`
	ObjectID        string         `json:"object_id"`
	Relation        string         `json:"relation"`
	SubjectType     string         `json:"subject_type"`
	SubjectID       string         `json:"subject_id"`
	SubjectRelation string         `json:"subject_relation,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	MaxDepth        int            `json:"max_depth,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}

	allowed, err := h.client.Check(r.Context(), coreauthz.Request{
		ObjectType:      req.ObjectType,
		ObjectID:        req.ObjectID,
		Relation:        req.Relation,
		SubjectType:     req.SubjectType,
		SubjectID:       req.SubjectID,
		SubjectRelation: req.SubjectRelation,
		Context:         req.Context,
	}, coreauthz.Options{MaxDepth: req.MaxDepth})
	if err != nil {
		h.writeError(w, r.Context(), "check", err)
		return
	}
	h.writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

type tupleWire struct {
	ObjectType       string         `json:"object_type"`
	ObjectID         string         `json:"object_id"`
	Relation         string         `json:"relation"`
	SubjectType      string         `json:"subject_type"`
	SubjectID        string         `json:"subject_id"`
	SubjectRelation  string         `json:"subject_relation,omitempty"`
	ConditionName    string         `json:"condition_name,omitempty"`
	ConditionContext map[string]any `json:"condition_context,omitempty"`
}

func (w tupleWire) toTuple() coreauthz.Tuple {
	return coreauthz.Tuple{
		ObjectType: w.ObjectType, ObjectID: w.ObjectID, Relation: w.Relation,
		SubjectType: w.SubjectType, SubjectID: w.SubjectID, SubjectRelation: w.SubjectRelation,
		ConditionName: w.ConditionName, ConditionContext: w.ConditionContext,
	}
}

func (h *Handler) handleWriteTuple(w http.ResponseWriter, r *http.Request) {
	var req tupleWire
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.client.AddTuple(r.Context(), req.toTuple()); err != nil {
		h.writeError(w, r.Context(), "write tuple", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteTuple(w http.ResponseWriter, r *http.Request) {
	var req tupleWire
	if !h.decode(w, r, &req) {
		return
	}
	removed, err := h.client.RemoveTuple(r.Context(), req.toTuple())
	if err != nil {
		h.writeError(w, r.Context(), "delete tuple", err)
		return
	}
	if !removed {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type relationConfigWire struct {
	ObjectType string                   `json:"object_type"`
	Relation   string                   `json:"relation"`
	Config     coreauthz.RelationConfig `json:"config"`
}

func (h *Handler) handleWriteRelationConfig(w http.ResponseWriter, r *http.Request) {
	var req relationConfigWire
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.client.WriteRelationConfig(r.Context(), req.ObjectType, req.Relation, req.Config); err != nil {
		h.writeError(w, r.Context(), "write relation config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWriteConditionDefinition(w http.ResponseWriter, r *http.Request) {
	var def coreauthz.ConditionDefinition
	if !h.decode(w, r, &def) {
		return
	}
	if err := h.client.WriteConditionDefinition(r.Context(), def); err != nil {
		h.writeError(w, r.Context(), "write condition definition", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, err := h.client.ListObjects(r.Context(), q.Get("object_type"), q.Get("relation"), q.Get("subject_type"), q.Get("subject_id"), coreauthz.Options{})
	if err != nil {
		h.writeError(w, r.Context(), "list objects", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"object_ids": ids})
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subjects, err := h.client.ListSubjects(r.Context(), q.Get("object_type"), q.Get("object_id"), q.Get("relation"))
	if err != nil {
		h.writeError(w, r.Context(), "list subjects", err)
		return
	}
	wire := make([]tupleWire, len(subjects))
	for i, t := range subjects {
		wire[i] = tupleWire{
			ObjectType: t.ObjectType, ObjectID: t.ObjectID, Relation: t.Relation,
			SubjectType: t.SubjectType, SubjectID: t.SubjectID, SubjectRelation: t.SubjectRelation,
			ConditionName: t.ConditionName, ConditionContext: t.ConditionContext,
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"subjects": wire})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError maps a Store/Client error to an HTTP status: malformed
// input is the caller's fault, everything else is logged and returned
// as an opaque internal error.
func (h *Handler) writeError(w http.ResponseWriter, ctx context.Context, op string, err error) {
	var (
		notFoundCfg      *coreauthz.RelationConfigNotFoundError
		invalidType      *coreauthz.InvalidSubjectTypeError
		usersetDenied    *coreauthz.UsersetNotAllowedError
		conditionMissing *coreauthz.ConditionNotFoundError
		conditionInvalid *coreauthz.ConditionEvaluationError
	)
	switch {
	case errors.Is(err, coreauthz.ErrMalformedRequest),
		errors.As(err, &notFoundCfg),
		errors.As(err, &invalidType),
		errors.As(err, &usersetDenied),
		errors.As(err, &conditionMissing),
		errors.As(err, &conditionInvalid):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.log.ErrorContext(ctx, "request failed", slog.String("op", op), slog.Any("error", err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
