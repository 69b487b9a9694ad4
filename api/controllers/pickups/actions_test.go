package pickups

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meadowlane/pickups-backend/api/middleware"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

type stubPickupService struct {
	instance  *models.PickupInstance
	instances []models.PickupInstance
	err       error

	gotDate    time.Time
	lastCalled string
}

func (s *stubPickupService) Get(context.Context, string, uuid.UUID) (*models.PickupInstance, error) {
	s.lastCalled = "get"
	return s.instance, s.err
}

func (s *stubPickupService) ListByDate(_ context.Context, _ string, date time.Time) ([]models.PickupInstance, error) {
	s.lastCalled = "list"
	s.gotDate = date
	return s.instances, s.err
}

func (s *stubPickupService) MarkReady(context.Context, string, uuid.UUID) (*models.PickupInstance, error) {
	s.lastCalled = "ready"
	return s.instance, s.err
}

func (s *stubPickupService) MarkPickedUp(context.Context, string, uuid.UUID) (*models.PickupInstance, error) {
	s.lastCalled = "picked_up"
	return s.instance, s.err
}

func (s *stubPickupService) Cancel(context.Context, string, uuid.UUID) (*models.PickupInstance, error) {
	s.lastCalled = "cancel"
	return s.instance, s.err
}

func (s *stubPickupService) MarkNoShow(context.Context, string, uuid.UUID) (*models.PickupInstance, error) {
	s.lastCalled = "no_show"
	return s.instance, s.err
}

func testInstance() *models.PickupInstance {
	return &models.PickupInstance{
		ID:            uuid.New(),
		ShopDomain:    "meadow.example.com",
		CustomerEmail: "pat@example.com",
		PickupDate:    time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		TimeSlot:      "9:00 AM – 11:00 AM",
		Status:        enums.PickupStatusScheduled,
	}
}

func pickupRequest(method, target string, id uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := middleware.WithShop(req.Context(), "meadow.example.com")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("pickupId", id.String())
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestMarkReadyReturnsUpdatedInstance(t *testing.T) {
	instance := testInstance()
	instance.Status = enums.PickupStatusReady
	service := &stubPickupService{instance: instance}
	handler := MarkReady(service, logger.New(logger.Options{ServiceName: "test"}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, pickupRequest(http.MethodPost, "/api/admin/v1/pickups/x/ready", instance.ID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.lastCalled != "ready" {
		t.Fatalf("unexpected call %q", service.lastCalled)
	}
	var envelope struct {
		Data pickupResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Status != string(enums.PickupStatusReady) {
		t.Fatalf("unexpected status %q", envelope.Data.Status)
	}
	if envelope.Data.PickupDate != "2026-03-06" {
		t.Fatalf("unexpected pickup date %q", envelope.Data.PickupDate)
	}
}

func TestTransitionRejectsBadPickupID(t *testing.T) {
	service := &stubPickupService{instance: testInstance()}
	handler := Cancel(service, logger.New(logger.Options{ServiceName: "test"}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/pickups/nope/cancel", nil)
	ctx := middleware.WithShop(req.Context(), "meadow.example.com")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("pickupId", "nope")
	req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", resp.Code)
	}
	if service.lastCalled != "" {
		t.Fatal("service must not be invoked with a bad id")
	}
}

func TestListByDateParsesQueryInBusinessZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	service := &stubPickupService{instances: []models.PickupInstance{*testInstance()}}
	handler := ListByDate(service, logger.New(logger.Options{ServiceName: "test"}), loc)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/pickups/?date=2026-03-06", nil)
	req = req.WithContext(middleware.WithShop(req.Context(), "meadow.example.com"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	want := time.Date(2026, 3, 6, 0, 0, 0, 0, loc)
	if !service.gotDate.Equal(want) {
		t.Fatalf("date parsed as %s, want %s", service.gotDate, want)
	}
}

func TestListByDateRejectsGarbageDate(t *testing.T) {
	service := &stubPickupService{}
	handler := ListByDate(service, logger.New(logger.Options{ServiceName: "test"}), time.UTC)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/pickups/?date=tomorrow", nil)
	req = req.WithContext(middleware.WithShop(req.Context(), "meadow.example.com"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if service.lastCalled != "" {
		t.Fatal("service must not be invoked for a garbage date")
	}
}
