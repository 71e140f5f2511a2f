// Package linking talks to the backend that links trading accounts.
package linking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// Client implements domain.AccountLinker over HTTP. Credentials are sent in
// the request body only; the client keeps no copy.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new account linking client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type linkRequest struct {
	Platform domain.Platform `json:"platform"`
	Username string          `json:"username"`
	Password string          `json:"password"`
}

// Link exchanges platform credentials for a linked-account handle
func (c *Client) Link(ctx context.Context, platform domain.Platform, creds domain.AccountCredentials) (*domain.LinkedAccount, error) {
	if c.baseURL == "" {
		return nil, domain.ErrLinkingUnavailable
	}

	body, err := json.Marshal(linkRequest{
		Platform: platform,
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encode link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/accounts/link", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request account link service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized:
		return nil, domain.ErrInvalidCredentials
	case http.StatusConflict:
		return nil, domain.ErrAccountAlreadyLinked
	default:
		// Body is truncated; the backend must not echo credentials anyway.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("account link service error: %d - %s", resp.StatusCode, string(msg))
	}

	var account domain.LinkedAccount
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if account.ID == "" {
		return nil, fmt.Errorf("account link service returned empty account id")
	}
	if account.Platform == "" {
		account.Platform = platform
	}
	return &account, nil
}
