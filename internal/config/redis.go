package config

// This file defines the Redis client constructor.  Redis backs the token
// revocation store (access-token blacklist and refresh pointers) and the
// shared rate limiter.  The client is created once by the entry point, passed
// to its consumers and closed on shutdown.

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAddr resolves the Redis address from the environment.
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand, used when host/port are not both set
//
// Defaults to localhost:6379.
func RedisAddr() string {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

// NewRedisClient instantiates a Redis client using environment variables.
// Besides the address variables above it reads:
//
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//
// Token revocation cannot work without Redis, so an unreachable server is an
// error rather than a nil client.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	dbNum := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		n, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid int for REDIS_DB: %q", dbStr)
		}
		dbNum = n
	}
	var tlsConf *tls.Config
	if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      RedisAddr(),
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        dbNum,
		TLSConfig: tlsConf,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", RedisAddr(), err)
	}
	return client, nil
}
