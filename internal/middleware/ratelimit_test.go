package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimitRejectsAfterLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() {
		cache.Close()
		mr.Close()
	}()

	app := fiber.New()
	app.Post("/limited", RateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	want := []int{fiber.StatusNoContent, fiber.StatusNoContent, fiber.StatusTooManyRequests}
	for i, code := range want {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/limited", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != code {
			t.Fatalf("request %d: expected %d got %d", i, code, resp.StatusCode)
		}
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer cache.Close()
	mr.Close()

	app := fiber.New()
	app.Post("/limited", RateLimit(cache, 1), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/limited", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("expected fail-open, got %d", resp.StatusCode)
		}
	}
}

func TestRateLimitCountersCarryExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() {
		cache.Close()
		mr.Close()
	}()

	app := fiber.New()
	app.Post("/limited", RateLimit(cache, 5), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	for i := 0; i < 2; i++ {
		if _, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/limited", nil)); err != nil {
			t.Fatalf("app.Test: %v", err)
		}
	}

	var counters int
	for _, key := range mr.Keys() {
		if !strings.HasPrefix(key, "rl:wallet:") {
			continue
		}
		counters++
		if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
			t.Fatalf("counter %s has ttl %v", key, ttl)
		}
	}
	if counters == 0 {
		t.Fatalf("expected a rate-limit counter")
	}

	mr.FastForward(2 * time.Minute)
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "rl:wallet:") {
			t.Fatalf("counter %s outlived its window", key)
		}
	}
}
