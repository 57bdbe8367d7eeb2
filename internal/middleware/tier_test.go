package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

func TestTierGateMiddleware(t *testing.T) {
	tests := []struct {
		name string
		user *model.User
		want int
	}{
		{"free is locked", &model.User{ID: "u", SubscriptionTier: model.TierFree}, http.StatusPaymentRequired},
		{"professional passes", &model.User{ID: "u", SubscriptionTier: model.TierProfessional}, http.StatusOK},
		{"business trial passes", &model.User{ID: "u", SubscriptionTier: "business_trial"}, http.StatusOK},
		{"admin passes", &model.User{ID: "u", SubscriptionTier: model.TierFree, IsAdmin: true}, http.StatusOK},
		{"unknown tier is locked", &model.User{ID: "u", SubscriptionTier: "legacy"}, http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewTierGateMiddleware(model.TierProfessional)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			req = req.WithContext(ContextWithUser(req.Context(), tt.user))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusPaymentRequired {
				if body := decodeBody(t, w); body["upgradeRequired"] != true {
					t.Errorf("body = %v", body)
				}
			}
		})
	}
}

func TestTierGateMiddleware_NoUser_Returns401(t *testing.T) {
	handler := NewTierGateMiddleware(model.TierProfessional)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
