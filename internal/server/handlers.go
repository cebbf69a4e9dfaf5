package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parking-spots/internal/auth"
	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
)

type Handler struct {
	serviceName string
	store       parking.Store
	gatekeeper  *parking.Gatekeeper
	detector    parking.Detector
	authz       auth.Authorizer
	metrics     *Metrics
}

func NewHandler(serviceName string, store parking.Store, gatekeeper *parking.Gatekeeper, detector parking.Detector, authz auth.Authorizer, metrics *Metrics) *Handler {
	return &Handler{
		serviceName: serviceName,
		store:       store,
		gatekeeper:  gatekeeper,
		detector:    detector,
		authz:       authz,
		metrics:     metrics,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Spots:   len(h.store.List(ctx)),
		Meta:    extractMeta(ctx),
	})
}

func (h *Handler) ListSpots(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.store.List(r.Context()))
}

func (h *Handler) GetSpot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := spotIDParam(r)
	if !ok {
		WriteError(ctx, w, http.StatusNotFound, KindNotFound, "Spot not found")
		return
	}

	spot, err := h.store.Get(ctx, id)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	WriteJSON(w, http.StatusOK, spot)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "Invalid request body")
		return
	}

	session, err := h.authz.IssueToken(req.Email)
	if err != nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "Email is required")
		return
	}

	logging.Info(ctx).Str("role", string(session.Role)).Msg("login")
	WriteJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Token:   session.Token,
		Role:    session.Role,
	})
}

// GateEntry serves the manual gate panel.
func (h *Handler) GateEntry(w http.ResponseWriter, r *http.Request) {
	h.gate(w, r, "entry", parking.SourceGate, h.gatekeeper.Enter)
}

// CheckEntry serves the recognition client, which also reports the colour.
func (h *Handler) CheckEntry(w http.ResponseWriter, r *http.Request) {
	h.gate(w, r, "check_entry", parking.SourceRecognition, h.gatekeeper.Enter)
}

func (h *Handler) GateExit(w http.ResponseWriter, r *http.Request) {
	h.gate(w, r, "exit", parking.SourceGate, h.gatekeeper.Exit)
}

type gateFunc func(ctx context.Context, req parking.EntryRequest) (*parking.EntryOutcome, error)

func (h *Handler) gate(w http.ResponseWriter, r *http.Request, endpoint string, source parking.Source, decide gateFunc) {
	ctx := r.Context()
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "Invalid request body")
		return
	}
	if req.SpotID == nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "spotId is required")
		return
	}

	outcome, err := decide(ctx, parking.EntryRequest{
		SpotID:      int64(*req.SpotID),
		VehicleType: req.VehicleType,
		Color:       req.Color,
		Source:      source,
	})
	h.metrics.observeGate(endpoint, outcome, err)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	WriteJSON(w, http.StatusOK, EntryResponse{
		Allowed:     outcome.Allowed,
		Message:     outcome.Message,
		UpdatedSpot: outcome.Spot,
	})
}

// UpsertSpot creates a spot, or updates it when the body carries an id.
func (h *Handler) UpsertSpot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SpotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "Invalid request body")
		return
	}

	var (
		spot    *parking.Spot
		err     error
		message string
	)
	if req.ID != nil && *req.ID != 0 {
		spot, err = h.store.Update(ctx, int64(*req.ID), req.fields())
		message = "Spot updated"
	} else {
		spot, err = h.store.Create(ctx, req.fields())
		message = "Spot created"
	}
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	h.logAdmin(r, spot.ID, message)
	WriteSuccess(ctx, w, message, spot)
}

func (h *Handler) DeleteSpot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := spotIDParam(r)
	if !ok {
		WriteError(ctx, w, http.StatusNotFound, KindNotFound, "Spot not found")
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	h.logAdmin(r, id, "Spot deleted")
	WriteSuccess(ctx, w, "Spot deleted", nil)
}

func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := spotIDParam(r)
	if !ok {
		WriteError(ctx, w, http.StatusNotFound, KindNotFound, "Spot not found")
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "Invalid request body")
		return
	}

	spot, err := h.store.AppendReview(ctx, id, parking.Review{
		Author:  req.User,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	WriteSuccess(ctx, w, "Review added", spot)
}

func (h *Handler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := spotIDParam(r)
	if !ok {
		WriteError(ctx, w, http.StatusNotFound, KindNotFound, "Spot not found")
		return
	}

	var req PhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, "Invalid request body")
		return
	}

	spot, err := h.store.AppendPhoto(ctx, id, parking.Photo{
		URL:    req.ImageURL,
		Author: req.User,
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	WriteSuccess(ctx, w, "Photo added", spot)
}

// Analyze stands in for image recognition and reports a random class.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class, err := h.detector.Detect(ctx)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	WriteJSON(w, http.StatusOK, AnalyzeResponse{Success: true, DetectedVehicle: class})
}

func (h *Handler) logAdmin(r *http.Request, spotID int64, action string) {
	event := logging.Info(r.Context()).Int64("spot_id", spotID)
	if p, ok := principalFrom(r.Context()); ok {
		event = event.Str("admin", p.Email)
	}
	event.Msg(action)
}

func spotIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}
