package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/cancellation"
	"github.com/fagerlund/salon-platform/internal/http/handlers"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/internal/policy"
	"github.com/fagerlund/salon-platform/internal/refunds"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)

	apptRepo := appointments.NewRepository(mock)
	payRepo := payments.NewRepository(mock)
	refundRepo := refunds.NewRepository(mock)
	detector := appointments.NewDetector(apptRepo)
	svc := appointments.NewService(apptRepo, detector, nil)
	gen := appointments.NewGenerator(apptRepo, detector, nil)
	calc := cancellation.NewCalculator(apptRepo, payRepo, policy.NewResolver(mock), nil)
	cancelSvc := cancellation.NewService(calc, apptRepo, payRepo, refundRepo, payments.NewExecutor(nil, nil, nil), nil)

	return New(&Config{
		Appointments:   handlers.NewAppointmentsHandler(svc, gen, nil, nil),
		Cancellation:   handlers.NewCancellationHandler(cancelSvc, apptRepo, nil, nil, nil),
		Refunds:        handlers.NewRefundsHandler(refundRepo, nil),
		StaffJWTSecret: "test-secret",
	})
}

func TestHealthz(t *testing.T) {
	r := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rec.Code)
	}
}

func TestAppointmentRoutesRequireTenant(t *testing.T) {
	r := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-Tenant-Id, got %d", rec.Code)
	}
}

func TestAppointmentRoutesRequireStaffAuth(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/appointments/", nil)
	req.Header.Set("X-Tenant-Id", "t-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without staff token, got %d", rec.Code)
	}
}

func TestRefundsRouteRequiresAuth(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/refunds", nil)
	req.Header.Set("X-Tenant-Id", "t-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without staff token, got %d", rec.Code)
	}
}
