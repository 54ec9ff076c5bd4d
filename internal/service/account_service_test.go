package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/platform/exchange"
)

func newVenue(t *testing.T, users map[string]bool, registerStatus int) *exchange.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user-verify/{userId}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("userId")
		if id == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"exists": users[id]})
	})
	mux.HandleFunc("GET /register", func(w http.ResponseWriter, r *http.Request) {
		if registerStatus != http.StatusOK {
			w.WriteHeader(registerStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": "new-user"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return exchange.NewClient(srv.URL)
}

func TestLogin(t *testing.T) {
	svc := NewAccountService(newVenue(t, map[string]bool{"alice": true}, http.StatusOK), nil)

	session, err := svc.Login(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session != (domain.Session{UserID: "alice", LoggedIn: true}) {
		t.Errorf("session = %+v", session)
	}
}

func TestLogin_UnknownUserIsNotFound(t *testing.T) {
	svc := NewAccountService(newVenue(t, nil, http.StatusOK), nil)

	_, err := svc.Login(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("Login = %v, want ErrUserNotFound", err)
	}
	if errors.Is(err, domain.ErrRequestFailed) {
		t.Error("unknown user must not be reported as a failed request")
	}
	if got := domain.UserMessage(err); got != "User does not exist" {
		t.Errorf("UserMessage = %q", got)
	}
}

func TestLogin_ServerError(t *testing.T) {
	svc := NewAccountService(newVenue(t, nil, http.StatusOK), nil)

	_, err := svc.Login(context.Background(), "broken")
	if !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("Login = %v, want ErrRequestFailed", err)
	}
	if got := domain.UserMessage(err); got != "Server error" {
		t.Errorf("UserMessage = %q", got)
	}
}

func TestLogin_EmptyUserID(t *testing.T) {
	svc := NewAccountService(nil, nil)
	if _, err := svc.Login(context.Background(), "   "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Login = %v, want ErrValidation", err)
	}
}

func TestRegister(t *testing.T) {
	svc := NewAccountService(newVenue(t, nil, http.StatusOK), nil)

	session, err := svc.Register(context.Background())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if session.UserID != "new-user" || !session.LoggedIn {
		t.Errorf("session = %+v", session)
	}

	if got := svc.Logout(session); got != (domain.Session{}) {
		t.Errorf("Logout = %+v, want zero session", got)
	}
}

func TestRegister_ServerError(t *testing.T) {
	svc := NewAccountService(newVenue(t, nil, http.StatusBadGateway), nil)

	_, err := svc.Register(context.Background())
	if !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("Register = %v, want ErrRequestFailed", err)
	}
	if !strings.Contains(err.Error(), "account_service: register") {
		t.Errorf("error not wrapped: %v", err)
	}
}
