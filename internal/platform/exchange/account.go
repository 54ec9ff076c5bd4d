package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// VerifyUser reports whether userID exists on the venue.
// GET /user-verify/{userId}
func (c *Client) VerifyUser(ctx context.Context, userID string) (bool, error) {
	const op = "exchange: verify user"

	body, err := c.doRequest(ctx, op, http.MethodGet, "/user-verify/"+url.PathEscape(userID), NewRequestID(), nil)
	if err != nil {
		return false, err
	}

	var resp VerifyUserResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("%s: decode: %w", op, err)
	}
	return resp.Exists, nil
}

// Register creates a new account and returns its user ID.
// GET /register
func (c *Client) Register(ctx context.Context) (string, error) {
	const op = "exchange: register"

	body, err := c.doRequest(ctx, op, http.MethodGet, "/register", NewRequestID(), nil)
	if err != nil {
		return "", err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%s: decode: %w", op, err)
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("%s: decode: empty userId", op)
	}
	return resp.UserID, nil
}
