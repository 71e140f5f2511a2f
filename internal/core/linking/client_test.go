package linking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

func TestLink_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts/link", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body linkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.PlatformMT4, body.Platform)
		assert.Equal(t, "bob", body.Username)
		assert.Equal(t, "pw", body.Password)

		_ = json.NewEncoder(w).Encode(map[string]string{"account_id": "acc_1"})
	}))
	defer srv.Close()

	account, err := NewClient(srv.URL).Link(context.Background(), domain.PlatformMT4,
		domain.AccountCredentials{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "acc_1", account.ID)
	assert.Equal(t, domain.PlatformMT4, account.Platform)
}

func TestLink_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrInvalidCredentials},
		{"conflict", http.StatusConflict, domain.ErrAccountAlreadyLinked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Link(context.Background(), domain.PlatformMT5, domain.AccountCredentials{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLink_ServerErrorAndUnconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Link(context.Background(), domain.PlatformMT4, domain.AccountCredentials{})
	assert.ErrorContains(t, err, "502")

	_, err = NewClient("").Link(context.Background(), domain.PlatformMT4, domain.AccountCredentials{})
	assert.ErrorIs(t, err, domain.ErrLinkingUnavailable)
}
