package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func ipProbeApp(cfg fiber.Config) (*fiber.App, *string) {
	var got string
	app := fiber.New(cfg)
	app.Get("/probe", func(c *fiber.Ctx) error {
		got = GetIPAddress(c)
		return c.SendStatus(fiber.StatusOK)
	})
	return app, &got
}

func TestGetIPAddressIgnoresSpoofedHeader(t *testing.T) {
	app, got := ipProbeApp(fiber.Config{
		EnableTrustedProxyCheck: true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if *got == "203.0.113.7" {
		t.Errorf("GetIPAddress() = %q, forwarded header honored from untrusted peer", *got)
	}
}

func TestGetIPAddressHonorsTrustedProxy(t *testing.T) {
	app, got := ipProbeApp(fiber.Config{
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0"},
		ProxyHeader:             fiber.HeaderXForwardedFor,
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if *got != "203.0.113.7" {
		t.Errorf("GetIPAddress() = %q, want forwarded address from trusted proxy", *got)
	}
}
