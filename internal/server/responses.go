package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"parking-spots/internal/auth"
	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
)

// Error kinds carried in Response.Error.
const (
	KindNotFound            = "not_found"
	KindInvalidVehicleClass = "invalid_vehicle_class"
	KindUnauthorized        = "unauthorized"
	KindInvalidRequest      = "invalid_request"
	KindNothingToRelease    = "nothing_to_release"
	KindInternal            = "internal"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Spots   int    `json:"spots"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", b)
	}
	if math.IsNaN(n) || n < math.MinInt64 || n >= math.MaxInt64 {
		return fmt.Errorf("number out of range: %q", b)
	}
	*f = flexInt(n)
	return nil
}

type LoginRequest struct {
	Email string `json:"email"`
}

type LoginResponse struct {
	Success bool      `json:"success"`
	Token   string    `json:"token"`
	Role    auth.Role `json:"role"`
}

type EntryRequest struct {
	SpotID      *flexInt `json:"spotId"`
	VehicleType string   `json:"vehicleType"`
	Color       string   `json:"color"`
}

type EntryResponse struct {
	Allowed     bool          `json:"allowed"`
	Message     string        `json:"message"`
	UpdatedSpot *parking.Spot `json:"updatedSpot,omitempty"`
}

type SpotRequest struct {
	ID        *flexInt `json:"id"`
	Place     string   `json:"place"`
	Location  string   `json:"location"`
	TotalArea flexInt  `json:"totalArea"`
	IsOpen    *bool    `json:"isOpen"`
}

func (r SpotRequest) fields() parking.SpotFields {
	return parking.SpotFields{
		Place:     r.Place,
		Location:  r.Location,
		TotalArea: int(r.TotalArea),
		IsOpen:    r.IsOpen,
	}
}

type ReviewRequest struct {
	User    string `json:"user"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type PhotoRequest struct {
	ImageURL string `json:"imageUrl"`
	User     string `json:"user"`
}

type AnalyzeResponse struct {
	Success         bool                 `json:"success"`
	DetectedVehicle parking.VehicleClass `json:"detectedVehicle"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

func WriteSuccess(ctx context.Context, w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    extractMeta(ctx),
	})
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, kind, message string) {
	WriteJSON(w, status, Response{
		Success: false,
		Message: message,
		Error:   kind,
		Meta:    extractMeta(ctx),
	})
}

// writeStoreError maps domain errors onto statuses and error kinds.
func writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, parking.ErrSpotNotFound):
		WriteError(ctx, w, http.StatusNotFound, KindNotFound, "Spot not found")
	case errors.Is(err, parking.ErrInvalidVehicleClass):
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidVehicleClass, "Invalid vehicle type")
	case errors.Is(err, parking.ErrNothingToRelease):
		WriteError(ctx, w, http.StatusConflict, KindNothingToRelease, "No such vehicle parked")
	case errors.Is(err, parking.ErrInvalidSpot), errors.Is(err, parking.ErrInvalidReview):
		WriteError(ctx, w, http.StatusBadRequest, KindInvalidRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		WriteError(ctx, w, http.StatusForbidden, KindUnauthorized, "Unauthorized")
	default:
		logging.Error(ctx).Err(err).Msg("request failed")
		WriteError(ctx, w, http.StatusInternalServerError, KindInternal, "Internal server error")
	}
}
