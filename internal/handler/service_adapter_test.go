package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/steadyleadflow/internal/auth"
	"github.com/hitoshi/steadyleadflow/internal/metrics"
	"github.com/hitoshi/steadyleadflow/internal/model"
)

type recordingLoginRecorder struct {
	outcomes []string
}

func (r *recordingLoginRecorder) RecordLogin(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestInstrumentedAuthService_RecordsOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, metrics.LoginSuccess},
		{"invalid credentials", model.NewInvalidCredentialsError(), metrics.LoginInvalidCredentials},
		{"missing fields", model.NewValidationError("Email and password are required."), metrics.LoginInvalidCredentials},
		{"upstream failure", errors.New("supabase unavailable"), metrics.LoginError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &mockAuthService{
				loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*auth.LoginResult, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &auth.LoginResult{Session: &model.Session{ID: "s"}, User: freeUser()}, nil
				},
			}
			rec := &recordingLoginRecorder{}
			svc := NewInstrumentedAuthService(inner, rec)

			_, err := svc.Login(context.Background(), "a@b.c", "pw", false)
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if len(rec.outcomes) != 1 || rec.outcomes[0] != tt.want {
				t.Errorf("outcomes = %v, want [%s]", rec.outcomes, tt.want)
			}
		})
	}
}

func TestInstrumentedAuthService_DelegatesSessionCalls(t *testing.T) {
	loggedOut := ""
	inner := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return freeUser(), nil
		},
	}
	rec := &recordingLoginRecorder{}
	svc := NewInstrumentedAuthService(inner, rec)

	if err := svc.Logout(context.Background(), "s-1"); err != nil || loggedOut != "s-1" {
		t.Errorf("logout = %v, %q", err, loggedOut)
	}
	u, err := svc.GetCurrentUser(context.Background(), "s-1")
	if err != nil || u.ID != "user-1" {
		t.Errorf("GetCurrentUser = %v, %v", u, err)
	}
	if len(rec.outcomes) != 0 {
		t.Errorf("only login should be recorded, got %v", rec.outcomes)
	}
}
