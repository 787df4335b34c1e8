package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gate-monitor/internal/config"
	"gate-monitor/internal/domain/gate"
	"gate-monitor/internal/live"
	"gate-monitor/internal/service"
	"gate-monitor/internal/tracker"
)

const testSecret = "test-secret"

type memEvents struct {
	mu         sync.Mutex
	created    []gate.VehicleEvent
	listFilter gate.EventFilter
	listResult []gate.VehicleEvent
	deleteErr  error
	nextID     int64
}

func (m *memEvents) Create(ctx context.Context, event *gate.VehicleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event.ID = m.nextID
	m.created = append(m.created, *event)
	return nil
}

func (m *memEvents) List(ctx context.Context, filter gate.EventFilter) ([]gate.VehicleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFilter = filter
	return m.listResult, nil
}

func (m *memEvents) Delete(ctx context.Context, id int64) error { return m.deleteErr }

func (m *memEvents) MarkAlertSent(ctx context.Context, id int64) error { return nil }

type memWhitelist struct{}

func (memWhitelist) Snapshot(ctx context.Context) ([]gate.WhitelistEntry, error) { return nil, nil }
func (memWhitelist) Upsert(ctx context.Context, plate, role string) (*gate.WhitelistEntry, error) {
	return &gate.WhitelistEntry{ID: 1, VehicleNumber: plate, AuthorizedAs: role}, nil
}
func (memWhitelist) Delete(ctx context.Context, id int64) error { return nil }

type memResolver struct{}

func (memResolver) Resolve(ctx context.Context, plate string) (bool, string) {
	return false, gate.RoleUnauthorized
}
func (memResolver) Invalidate() {}

type memAlerter struct{}

func (memAlerter) MaybeAlert(ctx context.Context, event *gate.VehicleEvent) bool { return false }

func newTestRouter(t *testing.T, events *memEvents) (*gin.Engine, *service.GateService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	trk := tracker.New(tracker.Config{
		MatchRadius:     120,
		GapTimeout:      3 * time.Second,
		MaxTrackLen:     15,
		MaxObservations: 60,
	}, gate.StatusIn, zerolog.Nop())

	hub := live.NewHub(zerolog.Nop())
	svc := service.NewGateService(trk, memResolver{}, events, memWhitelist{}, memAlerter{}, hub, zerolog.Nop())
	svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret

	r := gin.New()
	handler := NewHandler(svc, hub, cfg, zerolog.Nop())
	handler.Register(r, AuthMiddleware(testSecret))
	return r, svc
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestListEventsParsesFilters(t *testing.T) {
	events := &memEvents{listResult: []gate.VehicleEvent{
		{ID: 1, VehicleNumber: "KA01AB1234", Status: gate.StatusIn},
	}}
	r, _ := newTestRouter(t, events)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/events?vehicle=KA01&status=IN&authorized=false&role=Unauthorized&vehicle_type=Car&date_from=2026-03-10&date_to=2026-03-11", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []gate.VehicleEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "KA01AB1234", body.Data[0].VehicleNumber)

	assert.Equal(t, "KA01", events.listFilter.Vehicle)
	assert.Equal(t, gate.StatusIn, events.listFilter.Status)
	require.NotNil(t, events.listFilter.Authorized)
	assert.False(t, *events.listFilter.Authorized)
	assert.Equal(t, gate.RoleUnauthorized, events.listFilter.Role)
	assert.Equal(t, "Car", events.listFilter.VehicleType)
	require.NotNil(t, events.listFilter.DateFrom)
	require.NotNil(t, events.listFilter.DateTo)
	// a bare upper-bound date covers the whole day
	assert.Equal(t, 23, events.listFilter.DateTo.Hour())
}

func TestIngestObservationAccepted(t *testing.T) {
	events := &memEvents{}
	r, _ := newTestRouter(t, events)

	body := `{"frame_id":1,"timestamp":"2026-03-10T08:00:00Z","bounding_box":{"x1":100,"y1":100,"x2":180,"y2":160},"plate_text":"KA01AB1234","ocr_confidence":80,"vehicle_type":"Car"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestObservationWithoutTimestampIsDropped(t *testing.T) {
	events := &memEvents{}
	r, svc := newTestRouter(t, events)

	body := `{"frame_id":1,"bounding_box":{"x1":100,"y1":100,"x2":180,"y2":160},"plate_text":"KA01AB1234","ocr_confidence":80,"vehicle_type":"Car"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// ingestion still acks, but the reading never opens a track
	assert.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Shutdown(ctx)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Empty(t, events.created)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r, _ := newTestRouter(t, &memEvents{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/events/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/events/1", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteEventNotFound(t *testing.T) {
	events := &memEvents{deleteErr: gorm.ErrRecordNotFound}
	r, _ := newTestRouter(t, events)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/events/42", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEventSuccess(t *testing.T) {
	r, _ := newTestRouter(t, &memEvents{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/events/1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSimulateEvent(t *testing.T) {
	events := &memEvents{}
	r, _ := newTestRouter(t, events)

	body := `{"vehicle_number":"zz99 zz9999","status":"in","confidence":77}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/simulate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data gate.VehicleEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ZZ99ZZ9999", resp.Data.VehicleNumber)
	assert.Equal(t, gate.StatusIn, resp.Data.Status)
	assert.Equal(t, 77, resp.Data.Confidence)
}

func TestUpsertWhitelistRejectsUnknownRole(t *testing.T) {
	r, _ := newTestRouter(t, &memEvents{})

	body := `{"vehicle_number":"AB12CD3456","authorized_as":"Visitor"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/whitelist", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
