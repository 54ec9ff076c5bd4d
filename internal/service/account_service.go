package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketclient/internal/domain"
	"github.com/alanyoungcy/marketclient/internal/metrics"
)

// AccountAPI is the venue's account surface.
type AccountAPI interface {
	VerifyUser(ctx context.Context, userID string) (bool, error)
	Register(ctx context.Context) (string, error)
}

// AccountService logs users in and registers new accounts.
type AccountService struct {
	api    AccountAPI
	logger *slog.Logger
}

// NewAccountService creates an AccountService backed by api.
func NewAccountService(api AccountAPI, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{api: api, logger: logger}
}

// Login verifies that userID exists. An unknown user yields
// domain.ErrUserNotFound, which is distinct from a failed request.
func (s *AccountService) Login(ctx context.Context, userID string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, fmt.Errorf("account_service: login: %w",
			&domain.ValidationError{Field: "userId", Reason: "User ID is required"})
	}

	exists, err := s.api.VerifyUser(ctx, userID)
	if err != nil {
		metrics.AccountRequestsTotal.WithLabelValues("login", "error").Inc()
		s.logger.WarnContext(ctx, "account_service: verify user failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return domain.Session{}, fmt.Errorf("account_service: login %q: %w", userID, err)
	}
	if !exists {
		metrics.AccountRequestsTotal.WithLabelValues("login", "not_found").Inc()
		return domain.Session{}, fmt.Errorf("account_service: login %q: %w", userID, domain.ErrUserNotFound)
	}

	metrics.AccountRequestsTotal.WithLabelValues("login", "ok").Inc()
	s.logger.InfoContext(ctx, "account_service: user logged in", slog.String("user_id", userID))
	return domain.Session{UserID: userID, LoggedIn: true}, nil
}

// Register creates a new account and returns its logged-in session.
func (s *AccountService) Register(ctx context.Context) (domain.Session, error) {
	userID, err := s.api.Register(ctx)
	metrics.AccountRequestsTotal.WithLabelValues("register", metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.WarnContext(ctx, "account_service: register failed", slog.String("error", err.Error()))
		return domain.Session{}, fmt.Errorf("account_service: register: %w", err)
	}

	s.logger.InfoContext(ctx, "account_service: account registered", slog.String("user_id", userID))
	return domain.Session{UserID: userID, LoggedIn: true}, nil
}

// Logout ends session.
func (s *AccountService) Logout(session domain.Session) domain.Session {
	if session.LoggedIn {
		s.logger.Info("account_service: user logged out", slog.String("user_id", session.UserID))
	}
	return session.Logout()
}
