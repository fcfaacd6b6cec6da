package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"
)

// LimiterDatabase keeps Fiber limiter counters apart from the cache (DB 0).
const LimiterDatabase = 1

// NewFiberStorage opens a Fiber storage on database of the cache server. The
// storage driver panics when the server is down, so reachability is checked
// with the shared client first.
func NewFiberStorage(database int) (fiber.Storage, error) {
	c := GetClient()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}

	opts := c.Options()
	host, rawPort, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis address %q: %w", opts.Addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", rawPort, err)
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: database,
	}), nil
}
