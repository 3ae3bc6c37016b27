package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/view", RequireAuth(), RequirePrivilege(model.PrivSyncView), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_name").(string))
	})
	app.Get("/any", RequireAuth(), RequireAnyPrivilege(model.PrivSyncTrigger, model.PrivSyncResolve), func(c *fiber.Ctx) error {
		return c.SendStatus(204)
	})
	return app
}

func bearer(t *testing.T, privileges ...string) string {
	t.Helper()
	token, err := jwt.GenerateToken("ops", privileges, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func TestRequireAuth(t *testing.T) {
	jwt.SetSecret("middleware-secret")
	defer jwt.SetSecret("")
	app := newApp()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", 401},
		{"bad format", "Token abc", 401},
		{"empty bearer", "Bearer ", 401},
		{"bad token", "Bearer abc", 401},
		{"no privilege", bearer(t, model.PrivSyncTrigger), 403},
		{"ok", bearer(t, model.PrivSyncView), 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/view", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestRequireAnyPrivilege(t *testing.T) {
	jwt.SetSecret("middleware-secret")
	defer jwt.SetSecret("")
	app := newApp()

	req := httptest.NewRequest("GET", "/any", nil)
	req.Header.Set("Authorization", bearer(t, model.PrivSyncResolve))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/any", nil)
	req.Header.Set("Authorization", bearer(t, model.PrivSyncView))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 403 {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRequireAuthAcceptsQueryTokenOnUpgrade(t *testing.T) {
	jwt.SetSecret("middleware-secret")
	defer jwt.SetSecret("")
	app := newApp()
	token := strings.TrimPrefix(bearer(t, model.PrivSyncView), "Bearer ")

	req := httptest.NewRequest("GET", "/view?token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("upgrade with query token: status = %d, want 200", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/view?token="+token, nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Errorf("plain request with query token: status = %d, want 401", resp.StatusCode)
	}
}
