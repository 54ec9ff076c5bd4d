package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// AccountService logs users in and registers accounts.
type AccountService interface {
	Login(ctx context.Context, userID string) (domain.Session, error)
	Register(ctx context.Context) (domain.Session, error)
}

// AccountHandler serves the account endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logHandler(logger, "account")}
}

// Verify logs in an existing user.
// GET /api/account/verify/{userId}
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	session, err := h.accounts.Login(r.Context(), pathParam(r, "userId"))
	if err != nil {
		writeClientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Register creates a new account.
// POST /api/account/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	session, err := h.accounts.Register(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: register failed", slog.String("error", err.Error()))
		writeClientError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}
