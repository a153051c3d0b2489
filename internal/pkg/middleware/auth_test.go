package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Sermonario/internal/pkg/credentials"
)

func TestRequireAdminToken(t *testing.T) {
	verifier := credentials.NewJWTVerifier("secret")
	app := fiber.New()
	app.Get("/admin", RequireAdminToken(verifier), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(KeyRole).(string))
	})

	adminToken, err := verifier.Issue(1, "admin@x.com", "ADMIN", time.Hour)
	require.NoError(t, err)
	userToken, err := verifier.Issue(2, "user@x.com", "USER", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"not bearer", "Basic abc", fiber.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"user role", "Bearer " + userToken, fiber.StatusForbidden},
		{"admin", "Bearer " + adminToken, fiber.StatusOK},
		{"lowercase scheme", "bearer " + adminToken, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
