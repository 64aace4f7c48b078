package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("admin-test-key")

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return s
}

func newAdminApp(auth *Auth) *fiber.App {
	app := fiber.New()
	app.Get("/admin", auth.AdminOnly(), func(c *fiber.Ctx) error {
		sub, err := GetSubject(c)
		if err != nil {
			return err
		}
		return c.SendString(sub)
	})
	return app
}

func TestAdminOnly(t *testing.T) {
	auth := NewAuth(func(*jwt.Token) (interface{}, error) { return testKey, nil }, []string{"user_admin", " "})
	app := newAdminApp(auth)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Token abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc", fiber.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, jwt.MapClaims{"sub": "user_admin", "exp": time.Now().Add(-time.Hour).Unix()}), fiber.StatusUnauthorized},
		{"no subject", "Bearer " + signed(t, jwt.MapClaims{"exp": exp}), fiber.StatusUnauthorized},
		{"not an admin", "Bearer " + signed(t, jwt.MapClaims{"sub": "user_other", "exp": exp}), fiber.StatusForbidden},
		{"admin", "Bearer " + signed(t, jwt.MapClaims{"sub": "user_admin", "exp": exp}), fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAdminOnlyWithoutKeys(t *testing.T) {
	app := newAdminApp(NewAuth(nil, []string{"user_admin"}))
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer x")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
