// Copyright 2025 James Ross
package redisclient

import (
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures a pooled Redis client. Zero values pick the same
// sane defaults as the rest of the fleet.
type Options struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// New returns a configured go-redis v9 client with pooling and retries.
// lakeforge uses this for both the message bus and the job store, which
// are logically distinct components even when they point at the same
// Redis instance in development.
func New(opts Options) *redis.Client {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10 * runtime.NumCPU()
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     poolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		MaxRetries:   maxRetries,
	})
}

// Addr formats a host/port pair the way Options.Addr expects it.
func Addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
