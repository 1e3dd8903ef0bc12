package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"parknet-api-server/config"
	"parknet-api-server/internal/api/middleware"
	"parknet-api-server/internal/auth"
	"parknet-api-server/internal/clock"
	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"
	"parknet-api-server/internal/socket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFacilities struct {
	mu    sync.Mutex
	saved map[string]models.Facility
}

func (f *fakeFacilities) Save(_ context.Context, fac models.Facility) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[fac.FacilityID] = fac
	return nil
}

type fakeFeedbacks struct {
	mu    sync.Mutex
	items map[string]models.Feedback
	now   time.Time
}

func (f *fakeFeedbacks) Create(_ context.Context, fb *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	fb.ID = primitive.NewObjectID()
	fb.CreatedAt, fb.UpdatedAt = f.now, f.now
	f.items[fb.ID.Hex()] = *fb
	return nil
}

func (f *fakeFeedbacks) List(context.Context) ([]models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Feedback, 0, len(f.items))
	for _, fb := range f.items {
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeFeedbacks) Get(_ context.Context, id string) (models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.items[id]
	if !ok {
		return models.Feedback{}, parking.ErrNotFound
	}
	return fb, nil
}

func (f *fakeFeedbacks) Update(_ context.Context, id string, patch models.FeedbackPatch) (models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.items[id]
	if !ok {
		return models.Feedback{}, parking.ErrNotFound
	}
	if patch.Name != nil {
		fb.Name = *patch.Name
	}
	if patch.Email != nil {
		fb.Email = *patch.Email
	}
	if patch.Message != nil {
		fb.Message = *patch.Message
	}
	f.items[id] = fb
	return fb, nil
}

func (f *fakeFeedbacks) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return parking.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeHistory struct {
	facility    string
	slot, limit int
}

func (f *fakeHistory) History(_ context.Context, facilityID string, slot, limit int) ([]models.ChangeEvent, error) {
	f.facility, f.slot, f.limit = facilityID, slot, limit
	return []models.ChangeEvent{{FacilityID: facilityID, SlotNumber: 1, Sequence: 1}}, nil
}

type fakeUploader struct {
	key, contentType string
}

func (f *fakeUploader) UploadFile(_ context.Context, file io.Reader, key, contentType string) (string, error) {
	_, _ = io.Copy(io.Discard, file)
	f.key, f.contentType = key, contentType
	return "https://cdn.example/" + key, nil
}

type testServer struct {
	router     *gin.Engine
	registry   *parking.Registry
	holds      *parking.HoldManager
	clock      *clock.Manual
	facilities *fakeFacilities
	history    *fakeHistory
	uploader   *fakeUploader
	tokens     map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := parking.NewBus(nil)
	reg := parking.NewRegistry(bus, clk, nil)
	holds := parking.NewHoldManager(reg, clk, nil)
	hub := socket.NewHub(reg, nil, nil)
	t.Cleanup(func() {
		hub.Shutdown()
		bus.Close()
	})
	if err := reg.Provision(models.Facility{
		FacilityID:  "maharagama",
		Name:        "Maharagama Car Park",
		Rating:      4.6,
		SlotNumbers: []int{1, 2, 3, 4, 5},
	}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	verifier, err := auth.NewVerifier("routes-secret", "parknet", time.Hour)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	tokens := map[string]string{}
	for user, role := range map[string]string{"admin": auth.RoleAdmin, "alice": auth.RoleUser, "bob": auth.RoleUser} {
		tok, err := verifier.Issue(user, role)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		tokens[user] = tok
	}

	s := &testServer{
		registry:   reg,
		holds:      holds,
		clock:      clk,
		facilities: &fakeFacilities{saved: map[string]models.Facility{}},
		history:    &fakeHistory{},
		uploader:   &fakeUploader{},
		tokens:     tokens,
	}
	s.router = SetupRouter(Deps{
		Config:     config.Config{Server: config.ServerConfig{CORSOrigins: []string{"*"}}},
		Logger:     zapNop(),
		Verifier:   verifier,
		Registry:   reg,
		Holds:      holds,
		Hub:        hub,
		Facilities: s.facilities,
		Feedbacks:  &fakeFeedbacks{items: map[string]models.Feedback{}, now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		History:    s.history,
		Uploader:   s.uploader,
		Limiter:    middleware.NewLimiterStore(100, 100, time.Minute),
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPublicReads(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/facilities", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	views := decode[[]models.FacilityView](t, rec)
	if len(views) != 1 || views[0].Counts.Total != 5 || views[0].AvailabilityRate != 1 {
		t.Fatalf("unexpected views %+v", views)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/facilities/maharagama/snapshot", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/facilities/kandy", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["code"] != "not_found" || body["error"] == "" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestHoldLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/holds", "", map[string]any{"facilityID": "maharagama", "slotNumber": 2})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/holds", "alice", map[string]any{"facilityID": "maharagama", "slotNumber": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	hold := decode[models.Hold](t, rec)
	if hold.HolderID != "alice" || hold.ExpiresAt.Sub(hold.CreatedAt) != parking.DefaultHoldTTL {
		t.Fatalf("unexpected hold %+v", hold)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/holds", "bob", map[string]any{"facilityID": "maharagama", "slotNumber": 2, "ttlSeconds": 60})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for held slot, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/holds", "bob", map[string]any{"facilityID": "maharagama", "slotNumber": 3, "ttlSeconds": 99999})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ttl over max, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/holds/mine", "alice", nil)
	if mine := decode[[]models.Hold](t, rec); len(mine) != 1 || mine[0].ID != hold.ID {
		t.Fatalf("unexpected my holds %+v", mine)
	}

	path := "/api/v1/holds/" + hold.ID
	if rec := s.do(t, http.MethodGet, path, "bob", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, path+"/extend", "bob", map[string]any{"extraSeconds": 60}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on extend by another user, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, path+"/extend", "alice", map[string]any{"extraSeconds": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("extend: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/admin/holds", "admin", nil); len(decode[[]models.Hold](t, rec)) != 1 {
		t.Fatalf("expected admin to see the hold")
	}

	rec = s.do(t, http.MethodPost, path+"/arrive", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("arrive: %d", rec.Code)
	}
	ev := decode[models.ChangeEvent](t, rec)
	if ev.NewState != models.SlotOccupied || ev.Cause != models.CauseArrival {
		t.Fatalf("unexpected arrival event %+v", ev)
	}

	if rec := s.do(t, http.MethodDelete, path, "alice", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected release of ended hold to be a no-op, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, path, "alice", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for ended hold, got %d", rec.Code)
	}
}

func TestAdminReleaseAnyHold(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/holds", "alice", map[string]any{"facilityID": "maharagama", "slotNumber": 1, "ttlSeconds": 120})
	hold := decode[models.Hold](t, rec)

	if rec := s.do(t, http.MethodDelete, "/api/v1/holds/"+hold.ID, "bob", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/holds/"+hold.ID, "admin", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	snap, _ := s.registry.Snapshot("maharagama")
	if snap.Slots[1] != models.SlotFree {
		t.Fatalf("expected slot freed, got %s", snap.Slots[1])
	}
}

func TestAdminFacilityManagement(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	create := map[string]any{
		"facilityID":  "odel",
		"name":        "ODEL Car Park",
		"address":     map[string]any{"fullText": "Ward Place, Colombo 07"},
		"rating":      4.5,
		"slotNumbers": []int{1, 2},
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/admin/facilities", "alice", create); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/admin/facilities", "admin", create); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/admin/facilities", "admin", create); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
	if _, ok := s.facilities.saved["odel"]; !ok {
		t.Fatalf("expected facility persisted")
	}

	if rec := s.do(t, http.MethodPost, "/api/v1/admin/facilities/odel/slots", "admin", map[string]any{"numbers": []int{3}}); rec.Code != http.StatusOK {
		t.Fatalf("add slots: %d", rec.Code)
	}
	if got := s.facilities.saved["odel"].SlotNumbers; len(got) != 3 {
		t.Fatalf("expected layout persisted, got %v", got)
	}

	update := map[string]any{"name": "ODEL Parking", "address": map[string]any{"fullText": "Ward Place"}, "rating": 4.8}
	if rec := s.do(t, http.MethodPut, "/api/v1/admin/facilities/odel", "admin", update); rec.Code != http.StatusOK {
		t.Fatalf("update: %d", rec.Code)
	}

	occupancy := "/api/v1/admin/facilities/odel/slots/3/occupancy"
	rec := s.do(t, http.MethodPut, occupancy, "admin", map[string]any{"occupied": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("occupancy: %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["changed"] != true {
		t.Fatalf("expected change, got %v", body)
	}
	rec = s.do(t, http.MethodPut, occupancy, "admin", map[string]any{"occupied": true})
	if body := decode[map[string]any](t, rec); body["changed"] != false {
		t.Fatalf("expected no-op, got %v", body)
	}
	if rec := s.do(t, http.MethodPut, "/api/v1/admin/facilities/odel/slots/x/occupancy", "admin", map[string]any{"occupied": true}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad slot number, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, occupancy, "admin", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without occupied, got %d", rec.Code)
	}

	view, err := parking.Render(s.registry, "odel")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if view.Name != "ODEL Parking" || view.Counts.Occupied != 1 || view.Counts.Total != 3 {
		t.Fatalf("unexpected view %+v", view)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/facilities/odel/events?slot=3&limit=5000", "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events: %d", rec.Code)
	}
	if s.history.facility != "odel" || s.history.slot != 3 || s.history.limit != 1000 {
		t.Fatalf("unexpected history query %+v", s.history)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/admin/facilities/odel/events?limit=-1", "admin", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestAdminUploadImage(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="front.PNG"`)
	header.Set("Content-Type", "image/png")
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/facilities/maharagama/image", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.tokens["admin"])
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(s.uploader.key, "facilities/maharagama/") || !strings.HasSuffix(s.uploader.key, ".png") {
		t.Fatalf("unexpected object key %s", s.uploader.key)
	}
	if s.uploader.contentType != "image/png" {
		t.Fatalf("unexpected content type %s", s.uploader.contentType)
	}
	fac, _ := s.registry.Facility("maharagama")
	if fac.ImageURL != "https://cdn.example/"+s.uploader.key {
		t.Fatalf("facility image not updated: %s", fac.ImageURL)
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"valid", map[string]any{"name": "Nimal", "email": "Nimal@Example.COM", "message": "Great app"}, http.StatusCreated},
		{"bad email", map[string]any{"name": "Nimal", "email": "nope", "message": "hi"}, http.StatusBadRequest},
		{"missing message", map[string]any{"name": "Nimal", "email": "n@example.com"}, http.StatusBadRequest},
		{"name too long", map[string]any{"name": strings.Repeat("a", 101), "email": "n@example.com", "message": "hi"}, http.StatusBadRequest},
		{"message too long", map[string]any{"name": "N", "email": "n@example.com", "message": strings.Repeat("m", 1001)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodPost, "/api/v1/feedbacks", "", tt.body)
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tt.name, tt.want, rec.Code, rec.Body.String())
		}
	}

	s.do(t, http.MethodPost, "/api/v1/feedbacks", "", map[string]any{"name": "Kamala", "email": "k@example.com", "message": "Second"})

	if rec := s.do(t, http.MethodGet, "/api/v1/feedbacks", "alice", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin list, got %d", rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/api/v1/feedbacks", "admin", nil)
	list := decode[[]models.Feedback](t, rec)
	if len(list) != 2 || list[0].Name != "Kamala" || list[1].Email != "nimal@example.com" {
		t.Fatalf("expected newest first with normalized email, got %+v", list)
	}

	id := list[1].ID.Hex()
	rec = s.do(t, http.MethodPut, "/api/v1/feedbacks/"+id, "admin", map[string]any{"name": "Nimal P", "email": "n@example.com", "message": "Edited"})
	if rec.Code != http.StatusOK || decode[models.Feedback](t, rec).Message != "Edited" {
		t.Fatalf("update failed: %d", rec.Code)
	}
	rec = s.do(t, http.MethodPut, "/api/v1/feedbacks/"+id, "admin", map[string]any{"message": "  Only the message  "})
	if rec.Code != http.StatusOK {
		t.Fatalf("partial update: %d (%s)", rec.Code, rec.Body.String())
	}
	if fb := decode[models.Feedback](t, rec); fb.Name != "Nimal P" || fb.Email != "n@example.com" || fb.Message != "Only the message" {
		t.Fatalf("expected untouched name and email, got %+v", fb)
	}
	for _, body := range []map[string]any{{}, {"email": "nope"}, {"name": "   "}, {"message": strings.Repeat("m", 1001)}} {
		if rec := s.do(t, http.MethodPut, "/api/v1/feedbacks/"+id, "admin", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("update %v: expected 400, got %d", body, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/feedbacks/"+id, "admin", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/feedbacks/"+id, "admin", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestWebsocketRequiresToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/api/v1/facilities/maharagama/ws", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/facilities/kandy/ws?token="+s.tokens["alice"], "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown facility, got %d", rec.Code)
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }

func TestHoldDurationsOutOfRange(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	for _, ttl := range []int64{-60, 7201, 18446744074} {
		rec := s.do(t, http.MethodPost, "/api/v1/holds", "alice", map[string]any{"facilityID": "maharagama", "slotNumber": 4, "ttlSeconds": ttl})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("ttlSeconds %d: expected 400, got %d (%s)", ttl, rec.Code, rec.Body.String())
		}
	}
	if snap, _ := s.registry.Snapshot("maharagama"); snap.Slots[4] != models.SlotFree {
		t.Fatalf("expected slot 4 to stay free, got %s", snap.Slots[4])
	}

	rec := s.do(t, http.MethodPost, "/api/v1/holds", "alice", map[string]any{"facilityID": "maharagama", "slotNumber": 4, "ttlSeconds": 7200})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected max ttl to be accepted, got %d", rec.Code)
	}
	hold := decode[models.Hold](t, rec)
	for _, extra := range []int64{-1, 18446744074} {
		rec := s.do(t, http.MethodPost, "/api/v1/holds/"+hold.ID+"/extend", "alice", map[string]any{"extraSeconds": extra})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("extraSeconds %d: expected 400, got %d", extra, rec.Code)
		}
	}
	after, err := s.holds.Hold(hold.ID)
	if err != nil || !after.ExpiresAt.Equal(hold.ExpiresAt) {
		t.Fatalf("expected hold unchanged, got %+v / %v", after, err)
	}
}

func TestReleaseExpiredHoldFreesSlot(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/holds", "alice", map[string]any{"facilityID": "maharagama", "slotNumber": 2, "ttlSeconds": 60})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request hold: %d", rec.Code)
	}
	hold := decode[models.Hold](t, rec)

	s.clock.Advance(2 * time.Minute)
	if rec := s.do(t, http.MethodGet, "/api/v1/holds/"+hold.ID, "alice", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected expired hold to read as 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/holds/"+hold.ID, "alice", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if snap, _ := s.registry.Snapshot("maharagama"); snap.Slots[2] != models.SlotFree {
		t.Fatalf("expected slot 2 free after release, got %s", snap.Slots[2])
	}
}
