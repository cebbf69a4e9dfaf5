package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-spots/internal/auth"
	"parking-spots/internal/gate"
	"parking-spots/internal/parking"
	"parking-spots/internal/telemetry"
)

const adminEmail = "nareshs@student.tce.edu"

type fixedDetector struct {
	class parking.VehicleClass
}

func (d fixedDetector) Detect(context.Context) (parking.VehicleClass, error) {
	return d.class, nil
}

type testEnv struct {
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSignaler(t, nil)
}

func newTestEnvWithSignaler(t *testing.T, signaler parking.Signaler) *testEnv {
	t.Helper()

	provider := telemetry.New("parking-spots-test", nil, nil)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	store, err := parking.NewInstrumentedRegistry(parking.NewRegistry(parking.SeedSpots()...), provider)
	require.NoError(t, err)

	srv := NewServer("0", "parking-spots-test", store,
		parking.NewGatekeeper(store, signaler),
		fixedDetector{class: parking.Bus},
		auth.NewStaticAuthorizer(adminEmail))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, http: ts}
}

// do sends body as JSON and decodes the response into out when out is
// not nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	var health HealthResponse
	resp := env.do(t, http.MethodGet, "/health", nil, "", &health)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "parking-spots-test", health.Service)
	assert.Equal(t, 3, health.Spots)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")

	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestListAndGetSpots(t *testing.T) {
	env := newTestEnv(t)

	var spots []parking.Spot
	resp := env.do(t, http.MethodGet, "/api/parking", nil, "", &spots)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, spots, 3)
	assert.Equal(t, "Sunset Point", spots[0].Place)
	assert.False(t, spots[2].IsOpen)

	var spot parking.Spot
	resp = env.do(t, http.MethodGet, "/api/parking/2", nil, "", &spot)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Market Square", spot.Place)
	assert.Equal(t, 280, spot.OccupiedArea)
	assert.Equal(t, parking.Availability{parking.Bike: true, parking.Car: true, parking.Van: true, parking.Bus: false}, spot.Availability)

	for _, path := range []string{"/api/parking/99", "/api/parking/abc"} {
		var errResp Response
		resp = env.do(t, http.MethodGet, path, nil, "", &errResp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.False(t, errResp.Success)
		assert.Equal(t, KindNotFound, errResp.Error)
		assert.Equal(t, "Spot not found", errResp.Message)
	}
}

func TestGateEntry(t *testing.T) {
	env := newTestEnv(t)

	var entry EntryResponse
	resp := env.do(t, http.MethodPost, "/api/gate/entry", map[string]any{"spotId": "1", "vehicleType": "Car"}, "", &entry)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, entry.Allowed)
	assert.Equal(t, "Welcome! Gate Opening for car.", entry.Message)
	require.NotNil(t, entry.UpdatedSpot)
	assert.Equal(t, 20, entry.UpdatedSpot.OccupiedArea)

	entry = EntryResponse{}
	resp = env.do(t, http.MethodPost, "/api/gate/entry", map[string]any{"spotId": 1, "vehicleType": "bus"}, "", &entry)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, entry.Allowed)
	assert.Equal(t, "Parking Full for bus. Required: 25, Available: 5", entry.Message)
	require.NotNil(t, entry.UpdatedSpot)
	assert.Equal(t, 20, entry.UpdatedSpot.OccupiedArea)
}

func TestGateEntryClosedSpot(t *testing.T) {
	env := newTestEnv(t)

	var entry EntryResponse
	resp := env.do(t, http.MethodPost, "/api/gate/entry", map[string]any{"spotId": 3, "vehicleType": "bike"}, "", &entry)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, entry.Allowed)
	assert.Equal(t, "Parking is Closed", entry.Message)
	require.NotNil(t, entry.UpdatedSpot)
	assert.Equal(t, 0, entry.UpdatedSpot.OccupiedArea)
}

func TestGateEntryErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"unknown vehicle", map[string]any{"spotId": 1, "vehicleType": "truck"}, http.StatusBadRequest, KindInvalidVehicleClass},
		{"unknown spot", map[string]any{"spotId": 99, "vehicleType": "car"}, http.StatusNotFound, KindNotFound},
		{"unknown spot and vehicle", map[string]any{"spotId": 99, "vehicleType": "truck"}, http.StatusNotFound, KindNotFound},
		{"missing spot id", map[string]any{"vehicleType": "car"}, http.StatusBadRequest, KindInvalidRequest},
		{"non numeric spot id", `{"spotId":"one","vehicleType":"car"}`, http.StatusBadRequest, KindInvalidRequest},
		{"malformed body", `{"spotId":`, http.StatusBadRequest, KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp Response
			resp := env.do(t, http.MethodPost, "/api/gate/entry", tt.body, "", &errResp)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, errResp.Error)
		})
	}

	var spot parking.Spot
	env.do(t, http.MethodGet, "/api/parking/1", nil, "", &spot)
	assert.Equal(t, 0, spot.OccupiedArea)
}

func TestCheckEntryUsesColour(t *testing.T) {
	env := newTestEnv(t)

	var entry EntryResponse
	env.do(t, http.MethodPost, "/api/gate/check-entry", map[string]any{"spotId": 1, "vehicleType": "van", "color": "white"}, "", &entry)
	assert.True(t, entry.Allowed)
	assert.Equal(t, "Welcome! Gate Opening for white van.", entry.Message)

	entry = EntryResponse{}
	env.do(t, http.MethodPost, "/api/gate/check-entry", map[string]any{"spotId": 1, "vehicleType": "van", "color": "white"}, "", &entry)
	assert.False(t, entry.Allowed)
	assert.Equal(t, "Parking Full for van.", entry.Message)
}

func TestGateExit(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/gate/entry", map[string]any{"spotId": 1, "vehicleType": "car"}, "", nil)

	var exit EntryResponse
	resp := env.do(t, http.MethodPost, "/api/gate/exit", map[string]any{"spotId": 1, "vehicleType": "car"}, "", &exit)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, exit.Allowed)
	assert.Equal(t, "Goodbye! car left Sunset Point.", exit.Message)
	require.NotNil(t, exit.UpdatedSpot)
	assert.Equal(t, 0, exit.UpdatedSpot.OccupiedArea)

	var errResp Response
	resp = env.do(t, http.MethodPost, "/api/gate/exit", map[string]any{"spotId": 1, "vehicleType": "car"}, "", &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, KindNothingToRelease, errResp.Error)
}

func TestConcurrentEntriesNeverOverAdmit(t *testing.T) {
	env := newTestEnv(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var entry EntryResponse
			env.do(t, http.MethodPost, "/api/gate/entry", map[string]any{"spotId": 1, "vehicleType": "bike"}, "", &entry)
			if entry.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, allowed)

	var spot parking.Spot
	env.do(t, http.MethodGet, "/api/parking/1", nil, "", &spot)
	assert.Equal(t, 24, spot.OccupiedArea)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	var login LoginResponse
	env.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": adminEmail}, "", &login)
	assert.True(t, login.Success)
	assert.Equal(t, auth.RoleAdmin, login.Role)
	assert.Equal(t, adminEmail, login.Token)

	login = LoginResponse{}
	env.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "driver@example.com"}, "", &login)
	assert.True(t, login.Success)
	assert.Equal(t, auth.RoleUser, login.Role)

	var errResp Response
	resp := env.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": ""}, "", &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindInvalidRequest, errResp.Error)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"place": "Harbour Front", "location": "Dock 3", "totalArea": 40}

	for _, token := range []string{"", "driver@example.com"} {
		var errResp Response
		resp := env.do(t, http.MethodPost, "/api/admin/spot", body, token, &errResp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, KindUnauthorized, errResp.Error)

		resp = env.do(t, http.MethodDelete, "/api/admin/spot/1", nil, token, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	var spots []parking.Spot
	env.do(t, http.MethodGet, "/api/parking", nil, "", &spots)
	assert.Len(t, spots, 3)
}

type spotResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Data    parking.Spot `json:"data"`
}

func TestAdminUpsertAndDelete(t *testing.T) {
	env := newTestEnv(t)

	var created spotResponse
	resp := env.do(t, http.MethodPost, "/api/admin/spot",
		map[string]any{"place": "Harbour Front", "location": "Dock 3", "totalArea": "40"}, adminEmail, &created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, created.Success)
	assert.Equal(t, int64(4), created.Data.ID)
	assert.Equal(t, 40, created.Data.TotalArea)
	assert.Equal(t, 0, created.Data.OccupiedArea)
	assert.True(t, created.Data.IsOpen)
	assert.True(t, created.Data.Availability[parking.Bus])

	var updated spotResponse
	resp = env.do(t, http.MethodPost, "/api/admin/spot",
		map[string]any{"id": 2, "place": "Market Square", "location": "Main Bazaar", "totalArea": 400, "isOpen": false}, adminEmail, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 400, updated.Data.TotalArea)
	assert.Equal(t, 280, updated.Data.OccupiedArea)
	assert.False(t, updated.Data.IsOpen)
	assert.True(t, updated.Data.Availability[parking.Bus])

	var errResp Response
	resp = env.do(t, http.MethodPost, "/api/admin/spot",
		map[string]any{"id": 99, "place": "Nowhere", "totalArea": 10}, adminEmail, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, KindNotFound, errResp.Error)

	errResp = Response{}
	resp = env.do(t, http.MethodPost, "/api/admin/spot",
		map[string]any{"place": "", "totalArea": 10}, adminEmail, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindInvalidRequest, errResp.Error)

	resp = env.do(t, http.MethodDelete, "/api/admin/spot/4", nil, adminEmail, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/admin/spot/4", nil, adminEmail, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/parking/4", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReviewsAndPhotos(t *testing.T) {
	env := newTestEnv(t)

	var reviewed spotResponse
	resp := env.do(t, http.MethodPost, "/api/spot/1/review",
		map[string]any{"user": "asha", "rating": 5, "comment": "easy to find"}, "", &reviewed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, reviewed.Data.Reviews, 1)
	assert.Equal(t, "asha", reviewed.Data.Reviews[0].Author)
	assert.Equal(t, 5, reviewed.Data.Reviews[0].Rating)
	assert.False(t, reviewed.Data.Reviews[0].Timestamp.IsZero())

	var photographed spotResponse
	resp = env.do(t, http.MethodPost, "/api/spot/1/photo",
		map[string]any{"imageUrl": "https://img.example.com/1.jpg", "user": "asha"}, "", &photographed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, photographed.Data.Images, 1)
	assert.Equal(t, "https://img.example.com/1.jpg", photographed.Data.Images[0].URL)
	assert.Len(t, photographed.Data.Reviews, 1)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		kind   string
	}{
		{"rating out of range", "/api/spot/1/review", map[string]any{"user": "asha", "rating": 9}, http.StatusBadRequest, KindInvalidRequest},
		{"review unknown spot", "/api/spot/99/review", map[string]any{"user": "asha", "rating": 3}, http.StatusNotFound, KindNotFound},
		{"photo without url", "/api/spot/1/photo", map[string]any{"user": "asha"}, http.StatusBadRequest, KindInvalidRequest},
		{"photo unknown spot", "/api/spot/99/photo", map[string]any{"imageUrl": "x.jpg"}, http.StatusNotFound, KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp Response
			resp := env.do(t, http.MethodPost, tt.path, tt.body, "", &errResp)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, errResp.Error)
		})
	}
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t)

	var analyzed AnalyzeResponse
	resp := env.do(t, http.MethodPost, "/api/analyze", nil, "", &analyzed)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, analyzed.Success)
	assert.Equal(t, parking.Bus, analyzed.DetectedVehicle)
}

func TestFlexIntAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": "34"}`), &v))
	assert.Equal(t, flexInt(12), v.A)
	assert.Equal(t, flexInt(34), v.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a": "twelve"}`), &v))

	for _, bad := range []string{`"NaN"`, `"Inf"`, `"-Infinity"`, `1e30`, `-1e19`, `"9.3e18"`} {
		assert.Error(t, json.Unmarshal([]byte(`{"a": `+bad+`}`), &v), bad)
	}
}

func TestGateEntryRejectsNonFiniteSpotID(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"spotId":"NaN","vehicleType":"car"}`,
		`{"spotId":1e30,"vehicleType":"car"}`,
	} {
		var errResp Response
		resp := env.do(t, http.MethodPost, "/api/gate/entry", body, "", &errResp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, KindInvalidRequest, errResp.Error, body)
	}

	var errResp Response
	resp := env.do(t, http.MethodPost, "/api/admin/spot", `{"place":"Harbour Front","totalArea":"Inf"}`, adminEmail, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindInvalidRequest, errResp.Error)
}

func TestGateEntryDoesNotWaitForGateController(t *testing.T) {
	received := make(chan parking.GateCommand, 4)
	release := make(chan struct{})
	controller := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd parking.GateCommand
		_ = json.NewDecoder(r.Body).Decode(&cmd)
		select {
		case <-release:
			received <- cmd
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(controller.Close)

	signals := gate.NewAsyncSignaler(gate.NewHTTPSignaler(controller.URL, 3), 8)
	env := newTestEnvWithSignaler(t, signals)

	start := time.Now()
	var entry EntryResponse
	resp := env.do(t, http.MethodPost, "/api/gate/entry", map[string]any{"spotId": 1, "vehicleType": "car"}, "", &entry)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, entry.Allowed)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, signals.Close(ctx))

	select {
	case cmd := <-received:
		assert.Equal(t, int64(1), cmd.SpotID)
		assert.Equal(t, parking.GateOpen, cmd.Action)
		assert.Equal(t, parking.Car, cmd.VehicleType)
	default:
		t.Fatal("gate controller never received the command")
	}
}
