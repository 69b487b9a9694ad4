package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meadowlane/pickups-backend/api/middleware"
	subsvc "github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

type stubLifecycle struct {
	sub   *models.Subscription
	notes []models.SubscriptionNote
	err   error

	gotActor   subsvc.Actor
	gotDate    time.Time
	gotSlot    string
	gotDay     int
	gotUntil   *time.Time
	lastCalled string
}

func (s *stubLifecycle) Get(context.Context, string, uuid.UUID) (*models.Subscription, error) {
	s.lastCalled = "get"
	return s.sub, s.err
}

func (s *stubLifecycle) Notes(context.Context, string, uuid.UUID) ([]models.SubscriptionNote, error) {
	s.lastCalled = "notes"
	return s.notes, s.err
}

func (s *stubLifecycle) Pause(_ context.Context, _ string, _ uuid.UUID, actor subsvc.Actor, _ string, until *time.Time) (*models.Subscription, error) {
	s.lastCalled = "pause"
	s.gotActor = actor
	s.gotUntil = until
	return s.sub, s.err
}

func (s *stubLifecycle) Resume(_ context.Context, _ string, _ uuid.UUID, actor subsvc.Actor) (*models.Subscription, error) {
	s.lastCalled = "resume"
	s.gotActor = actor
	return s.sub, s.err
}

func (s *stubLifecycle) Cancel(_ context.Context, _ string, _ uuid.UUID, actor subsvc.Actor, _ string) (*models.Subscription, error) {
	s.lastCalled = "cancel"
	s.gotActor = actor
	return s.sub, s.err
}

func (s *stubLifecycle) OneTimeReschedule(_ context.Context, _ string, _ uuid.UUID, actor subsvc.Actor, newDate time.Time, timeSlot, _ string) (*models.Subscription, error) {
	s.lastCalled = "one_time"
	s.gotActor = actor
	s.gotDate = newDate
	s.gotSlot = timeSlot
	return s.sub, s.err
}

func (s *stubLifecycle) ClearOneTimeReschedule(_ context.Context, _ string, _ uuid.UUID, actor subsvc.Actor) (*models.Subscription, error) {
	s.lastCalled = "clear_one_time"
	s.gotActor = actor
	return s.sub, s.err
}

func (s *stubLifecycle) PermanentReschedule(_ context.Context, _ string, _ uuid.UUID, actor subsvc.Actor, newDay int, newTimeSlot string) (*models.Subscription, error) {
	s.lastCalled = "permanent"
	s.gotActor = actor
	s.gotDay = newDay
	s.gotSlot = newTimeSlot
	return s.sub, s.err
}

func testSubscription() *models.Subscription {
	next := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	return &models.Subscription{
		ID:                uuid.New(),
		ShopDomain:        "meadow.example.com",
		CustomerEmail:     "pat@example.com",
		Status:            enums.SubscriptionStatusActive,
		Frequency:         enums.FrequencyWeekly,
		PreferredDay:      5,
		PreferredTimeSlot: "9:00 AM – 11:00 AM",
		NextPickupDate:    &next,
	}
}

func actionRequest(method, target string, body []byte, id uuid.UUID) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	ctx := middleware.WithShop(req.Context(), "meadow.example.com")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("subscriptionId", id.String())
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func TestPauseRequiresCustomerEmailHeader(t *testing.T) {
	service := &stubLifecycle{sub: testSubscription()}
	handler := Pause(service, logger.New(logger.Options{ServiceName: "test"}), time.UTC, false)

	req := actionRequest(http.MethodPost, "/api/v1/subscriptions/x/pause", []byte(`{}`), service.sub.ID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without customer header, got %d", resp.Code)
	}
	if service.lastCalled != "" {
		t.Fatal("service must not be invoked without an actor")
	}
}

func TestPauseForwardsActorAndUntilDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	service := &stubLifecycle{sub: testSubscription()}
	handler := Pause(service, logger.New(logger.Options{ServiceName: "test"}), loc, false)

	body, _ := json.Marshal(pauseRequest{Reason: "vacation", Until: "2026-04-01"})
	req := actionRequest(http.MethodPost, "/api/v1/subscriptions/x/pause", body, service.sub.ID)
	req.Header.Set(customerEmailHeader, "pat@example.com")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.gotActor.Staff || service.gotActor.Email != "pat@example.com" {
		t.Fatalf("unexpected actor %+v", service.gotActor)
	}
	if service.gotUntil == nil {
		t.Fatal("until date not forwarded")
	}
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, loc)
	if !service.gotUntil.Equal(want) {
		t.Fatalf("until parsed as %s, want %s", service.gotUntil, want)
	}
}

func TestPauseAcceptsEmptyBody(t *testing.T) {
	service := &stubLifecycle{sub: testSubscription()}
	handler := Pause(service, logger.New(logger.Options{ServiceName: "test"}), time.UTC, true)

	req := actionRequest(http.MethodPost, "/api/admin/v1/subscriptions/x/pause", nil, service.sub.ID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for an empty body, got %d: %s", resp.Code, resp.Body.String())
	}
	if !service.gotActor.Staff {
		t.Fatal("admin route should act as staff")
	}
}

func TestOneTimeRescheduleParsesDateInBusinessZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	service := &stubLifecycle{sub: testSubscription()}
	handler := OneTimeReschedule(service, logger.New(logger.Options{ServiceName: "test"}), loc, false)

	body, _ := json.Marshal(oneTimeRescheduleRequest{Date: "2026-03-10", TimeSlot: "12:00 PM – 2:00 PM"})
	req := actionRequest(http.MethodPost, "/api/v1/subscriptions/x/reschedule", body, service.sub.ID)
	req.Header.Set(customerEmailHeader, "pat@example.com")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	if !service.gotDate.Equal(want) {
		t.Fatalf("date parsed as %s, want %s", service.gotDate, want)
	}
	if service.gotSlot != "12:00 PM – 2:00 PM" {
		t.Fatalf("unexpected slot %q", service.gotSlot)
	}
}

func TestOneTimeRescheduleRejectsMissingDate(t *testing.T) {
	service := &stubLifecycle{sub: testSubscription()}
	handler := OneTimeReschedule(service, logger.New(logger.Options{ServiceName: "test"}), time.UTC, false)

	req := actionRequest(http.MethodPost, "/api/v1/subscriptions/x/reschedule", []byte(`{}`), service.sub.ID)
	req.Header.Set(customerEmailHeader, "pat@example.com")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a date, got %d", resp.Code)
	}
	if service.lastCalled != "" {
		t.Fatal("service must not be invoked on validation failure")
	}
}

func TestPermanentRescheduleRequiresDay(t *testing.T) {
	service := &stubLifecycle{sub: testSubscription()}
	handler := PermanentReschedule(service, logger.New(logger.Options{ServiceName: "test"}), true)

	req := actionRequest(http.MethodPost, "/api/admin/v1/subscriptions/x/reschedule/permanent", []byte(`{"timeSlot":"2:00 PM – 4:00 PM"}`), service.sub.ID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a day, got %d", resp.Code)
	}
}

func TestPermanentRescheduleAcceptsDayZero(t *testing.T) {
	service := &stubLifecycle{sub: testSubscription()}
	handler := PermanentReschedule(service, logger.New(logger.Options{ServiceName: "test"}), true)

	req := actionRequest(http.MethodPost, "/api/admin/v1/subscriptions/x/reschedule/permanent", []byte(`{"day":0}`), service.sub.ID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for Sunday, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.gotDay != 0 {
		t.Fatalf("expected day 0, got %d", service.gotDay)
	}
}

func TestActionsMapServiceErrors(t *testing.T) {
	service := &stubLifecycle{err: pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already paused")}
	handler := Resume(service, logger.New(logger.Options{ServiceName: "test"}), true)

	req := actionRequest(http.MethodPost, "/api/admin/v1/subscriptions/x/resume", nil, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a state conflict, got %d", resp.Code)
	}
}

func TestDetailRejectsBadSubscriptionID(t *testing.T) {
	service := &stubLifecycle{sub: testSubscription()}
	handler := Detail(service, logger.New(logger.Options{ServiceName: "test"}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/subscriptions/not-a-uuid", nil)
	ctx := middleware.WithShop(req.Context(), "meadow.example.com")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("subscriptionId", "not-a-uuid")
	req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", resp.Code)
	}
}

func TestDetailRendersDatesAsCalendarDays(t *testing.T) {
	sub := testSubscription()
	service := &stubLifecycle{sub: sub}
	handler := Detail(service, logger.New(logger.Options{ServiceName: "test"}))

	req := actionRequest(http.MethodGet, "/api/admin/v1/subscriptions/x", nil, sub.ID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data subscriptionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.NextPickupDate == nil || *envelope.Data.NextPickupDate != "2026-03-06" {
		t.Fatalf("unexpected next pickup date %v", envelope.Data.NextPickupDate)
	}
}
