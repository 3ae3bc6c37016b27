package upstream

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go-pricebook-sync/internal/model"

	"github.com/gofiber/fiber/v2"
)

// startServer serves app on a random local port until the test ends.
func startServer(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func newTestClient(baseURL string, retries int) (*HTTPClient, *[]time.Duration) {
	c := NewHTTPClient(HTTPConfig{
		BaseURL:     baseURL,
		TenantID:    "42",
		AppKey:      "app-key",
		AccessToken: "token",
		Timeout:     5 * time.Second,
		MaxRetries:  retries,
		Backoff:     10 * time.Millisecond,
	}, nil)
	var mu sync.Mutex
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestListSendsPagingAndAuth(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	var gotAuth, gotKey, gotPage, gotSize, gotSince, gotCategory string
	app.Get("/tenant/42/materials", func(c *fiber.Ctx) error {
		gotAuth = c.Get(fiber.HeaderAuthorization)
		gotKey = c.Get("ST-App-Key")
		gotPage = c.Query("page")
		gotSize = c.Query("pageSize")
		gotSince = c.Query("modifiedOnOrAfter")
		gotCategory = c.Query("categoryId")
		return c.JSON(fiber.Map{
			"data":    []fiber.Map{{"id": 1}, {"id": "2"}},
			"hasMore": true,
		})
	})
	client, _ := newTestClient(startServer(t, app), 0)

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	category := int64(7)
	page, err := client.List(context.Background(), model.EntityMaterial, ListOptions{
		Page: 2, PageSize: 50, ModifiedSince: &since, CategoryID: &category,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 2 || !page.HasMore {
		t.Errorf("page = %+v", page)
	}
	if gotAuth != "Bearer token" || gotKey != "app-key" {
		t.Errorf("headers = %q %q", gotAuth, gotKey)
	}
	if gotPage != "2" || gotSize != "50" || gotCategory != "7" || gotSince != "2026-03-01T12:00:00Z" {
		t.Errorf("query = page:%s size:%s category:%s since:%s", gotPage, gotSize, gotCategory, gotSince)
	}
}

func TestRetriesRateLimit(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	var mu sync.Mutex
	calls := 0
	app.Get("/tenant/42/categories", func(c *fiber.Ctx) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			c.Set(fiber.HeaderRetryAfter, "3")
			return c.SendStatus(fiber.StatusTooManyRequests)
		}
		if n == 2 {
			return c.SendStatus(fiber.StatusBadGateway)
		}
		return c.JSON(fiber.Map{"data": []fiber.Map{}, "hasMore": false})
	})
	client, waits := newTestClient(startServer(t, app), 3)

	if _, err := client.List(context.Background(), model.EntityCategory, ListOptions{Page: 1, PageSize: 10}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 3*time.Second || (*waits)[1] != 20*time.Millisecond {
		t.Errorf("waits = %v, want [3s 20ms]", *waits)
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/tenant/42/services", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusServiceUnavailable).SendString("maintenance")
	})
	client, waits := newTestClient(startServer(t, app), 2)

	_, err := client.List(context.Background(), model.EntityService, ListOptions{Page: 1, PageSize: 10})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != fiber.StatusServiceUnavailable {
		t.Fatalf("err = %v, want 503 StatusError", err)
	}
	if len(*waits) != 2 {
		t.Errorf("waits = %v, want 2", *waits)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/tenant/42/equipment/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "404" {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.Status(fiber.StatusBadRequest).SendString("bad id")
	})
	client, waits := newTestClient(startServer(t, app), 3)

	if _, err := client.Get(context.Background(), model.EntityEquipment, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 err = %v", err)
	}
	_, err := client.Get(context.Background(), model.EntityEquipment, 5)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != fiber.StatusBadRequest {
		t.Errorf("400 err = %v", err)
	}
	if len(*waits) != 0 {
		t.Errorf("client errors were retried: %v", *waits)
	}
}

func TestUpdateSendsPatch(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	var method string
	var body map[string]interface{}
	app.Patch("/tenant/42/materials/9", func(c *fiber.Ctx) error {
		method = c.Method()
		if err := c.BodyParser(&body); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": 9, "modifiedOn": "2026-03-02T10:00:00Z"})
	})
	client, _ := newTestClient(startServer(t, app), 0)

	raw, err := client.Update(context.Background(), model.EntityMaterial, 9, map[string]interface{}{"displayName": "Copper"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if method != fiber.MethodPatch || body["displayName"] != "Copper" {
		t.Errorf("request = %s %v", method, body)
	}
	item, err := DecodeItem(raw)
	if err != nil || item.ID != 9 || item.ModifiedOn == nil {
		t.Errorf("response = %+v, %v", item, err)
	}
}

func TestUnconfiguredBaseURL(t *testing.T) {
	client, _ := newTestClient("", 0)
	if _, err := client.List(context.Background(), model.EntityCategory, ListOptions{Page: 1}); !errors.Is(err, ErrUnsupportedURL) {
		t.Errorf("err = %v", err)
	}
}
