package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lavapool/lavapool/internal/logging"
)

// generateAPIKey generates a valid API key of specified length
func generateAPIKey(length int) string {
	key := make([]byte, length)
	for i := range key {
		key[i] = 'a' + byte(i%26)
	}
	return string(key)
}

func newAuthApp(apiKeys []string, enabled bool) *fiber.App {
	logger := logging.NewWithWriter(io.Discard, zerolog.Disabled)

	app := fiber.New()
	app.Use(APIKeyAuth(logger, apiKeys, enabled))
	app.Get("/protected", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAPIKeyAuth(t *testing.T) {
	validKey := generateAPIKey(32)

	tests := []struct {
		name     string
		enabled  bool
		header   string
		value    string
		expected int
	}{
		{
			name:     "disabled auth passes without key",
			enabled:  false,
			expected: fiber.StatusOK,
		},
		{
			name:     "missing key rejected",
			enabled:  true,
			expected: fiber.StatusUnauthorized,
		},
		{
			name:     "valid X-API-Key accepted",
			enabled:  true,
			header:   "X-API-Key",
			value:    validKey,
			expected: fiber.StatusOK,
		},
		{
			name:     "valid bearer token accepted",
			enabled:  true,
			header:   "Authorization",
			value:    "Bearer " + validKey,
			expected: fiber.StatusOK,
		},
		{
			name:     "plain Authorization header accepted",
			enabled:  true,
			header:   "Authorization",
			value:    validKey,
			expected: fiber.StatusOK,
		},
		{
			name:     "invalid key rejected",
			enabled:  true,
			header:   "X-API-Key",
			value:    generateAPIKey(33),
			expected: fiber.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAuthApp([]string{validKey}, tt.enabled)

			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Failed to perform request: %v", err)
			}
			if resp.StatusCode != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, resp.StatusCode)
			}
		})
	}
}

func TestAPIKeyAuthShortKeysIgnored(t *testing.T) {
	shortKey := generateAPIKey(16)
	app := newAuthApp([]string{shortKey}, true)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", shortKey)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"abcdefghijklmnop", "abcd****"},
		{"abcd", "****"},
		{"abc", "****"},
		{"", "****"},
	}

	for _, tt := range tests {
		if got := maskAPIKey(tt.key); got != tt.expected {
			t.Errorf("maskAPIKey(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}
