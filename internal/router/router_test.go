package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/servizo/api/internal/auth"
	"github.com/servizo/api/internal/config"
	"github.com/servizo/api/internal/enum"
	"github.com/servizo/api/internal/payment"
	"github.com/servizo/api/internal/ws"
)

const testSecret = "router-test-secret"

// newTestRouter builds the router without a database. Only requests that
// are rejected before reaching a service can be served.
func newTestRouter() http.Handler {
	cfg := &config.Config{
		JWTSecret:            testSecret,
		CORSOrigins:          []string{"http://localhost:5173"},
		StripePublishableKey: "pk_test_router",
		Currency:             "eur",
	}
	return New(cfg, nil, ws.NewHub(), payment.NewStripe("sk_test", "whsec_test", nil))
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, uuid.New(), role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestRouteAccess(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"public config", "GET", "/payments/config", "", http.StatusOK},
		{"orders need login", "GET", "/orders", "", http.StatusUnauthorized},
		{"customer cannot list orders", "GET", "/orders", enum.UserRoleCustomer, http.StatusForbidden},
		{"customer cannot see tables", "GET", "/tables", enum.UserRoleCustomer, http.StatusForbidden},
		{"waiter cannot edit categories", "POST", "/categories", enum.UserRoleWaiter, http.StatusForbidden},
		{"waiter cannot edit items", "DELETE", "/items/" + uuid.NewString(), enum.UserRoleWaiter, http.StatusForbidden},
		{"waiter cannot delete orders", "DELETE", "/orders/" + uuid.NewString(), enum.UserRoleWaiter, http.StatusForbidden},
		{"waiter cannot read reports", "GET", "/reports/daily-sales", enum.UserRoleWaiter, http.StatusForbidden},
		{"manager cannot manage users", "GET", "/users", enum.UserRoleManager, http.StatusForbidden},
		{"manager has no shift", "POST", "/waiters/me/shift/start", enum.UserRoleManager, http.StatusForbidden},
		{"staff feed needs staff", "GET", "/ws/orders", enum.UserRoleCustomer, http.StatusForbidden},
		{"invalid table feed", "GET", "/ws/tables/0", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.role != "" {
				req.Header.Set("Authorization", "Bearer "+tokenFor(t, tt.role))
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}
