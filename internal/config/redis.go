package config

import (
	"context"
	"crypto/tls"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the Redis client backing the distributed lock
// coordinator, the waiting queue and the rate limiter.  Address settings
// come from REDIS_ADDR (host:port) or REDIS_HOST/REDIS_PORT, with
// REDIS_PASSWORD, REDIS_DB and REDIS_TLS as optional extras.
//
// A nil return means Redis could not be reached at startup.  Callers
// degrade: locks and the waiting queue fall back to their in-process
// implementations (single-instance only) and the rate limiter becomes a
// pass-through.  Arbitration correctness does not depend on Redis — the
// database closes the occupancy invariant either way.
func NewRedisClient() *redis.Client {
	addr := envStr("REDIS_ADDR", "")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	var tlsConf *tls.Config
	if envBool("REDIS_TLS", false) {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}

	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        envInt("REDIS_DB", 0),
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[config] redis unreachable at %s: %v", addr, err)
		_ = client.Close()
		return nil
	}
	return client
}
