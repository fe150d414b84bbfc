package mysql

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadOptions reads session options from a config file (any format
// viper supports: yaml, json, toml, env) plus environment variable
// overrides under the MYSQL_ prefix, and returns them as Options
// built through the usual functional-options constructor.
//
// Recognized keys: user, password, net, addr, database,
// connect_timeout, read_timeout, write_timeout, max_allowed_packet.
func LoadOptions(path string) (*Options, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MYSQL")
	v.AutomaticEnv()
	v.SetDefault("net", "tcp")
	v.SetDefault("addr", "127.0.0.1:3306")
	v.SetDefault("connect_timeout", "10s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("mysql: load config %q: %w", path, err)
	}

	connectTimeout, err := time.ParseDuration(v.GetString("connect_timeout"))
	if err != nil {
		return nil, fmt.Errorf("mysql: parse connect_timeout: %w", err)
	}
	readTimeout, _ := time.ParseDuration(v.GetString("read_timeout"))
	writeTimeout, _ := time.ParseDuration(v.GetString("write_timeout"))

	opts := []Option{
		WithCredentials(v.GetString("user"), v.GetString("password")),
		WithAddr(v.GetString("net"), v.GetString("addr")),
		WithTimeouts(connectTimeout, readTimeout, writeTimeout),
	}
	if db := v.GetString("database"); db != "" {
		opts = append(opts, WithDatabase(db))
	}

	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	if pkt := v.GetInt("max_allowed_packet"); pkt > 0 {
		o.MaxAllowedPacket = pkt
	}
	return o, nil
}

// LoadPoolOptions reads pool sizing and recycling policy from the
// same kind of config source as LoadOptions, under the pool.* keys.
func LoadPoolOptions(path string) (*PoolOptions, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MYSQL")
	v.AutomaticEnv()
	v.SetDefault("pool.min_idle", 0)
	v.SetDefault("pool.max_active", 10)
	v.SetDefault("pool.idle_test_threshold", "30s")
	v.SetDefault("pool.max_lifetime", "1h")
	v.SetDefault("pool.max_usage", 0)
	v.SetDefault("pool.max_errors", 3)
	v.SetDefault("pool.acquire_timeout", "5s")
	v.SetDefault("pool.retry_base_delay", "50ms")
	v.SetDefault("pool.max_retries", 3)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("mysql: load pool config %q: %w", path, err)
	}

	idleTest, err := time.ParseDuration(v.GetString("pool.idle_test_threshold"))
	if err != nil {
		return nil, fmt.Errorf("mysql: parse pool.idle_test_threshold: %w", err)
	}
	maxLifetime, err := time.ParseDuration(v.GetString("pool.max_lifetime"))
	if err != nil {
		return nil, fmt.Errorf("mysql: parse pool.max_lifetime: %w", err)
	}
	acquireTimeout, err := time.ParseDuration(v.GetString("pool.acquire_timeout"))
	if err != nil {
		return nil, fmt.Errorf("mysql: parse pool.acquire_timeout: %w", err)
	}
	retryBaseDelay, err := time.ParseDuration(v.GetString("pool.retry_base_delay"))
	if err != nil {
		return nil, fmt.Errorf("mysql: parse pool.retry_base_delay: %w", err)
	}

	return &PoolOptions{
		MinIdle:           v.GetInt("pool.min_idle"),
		MaxActive:         v.GetInt("pool.max_active"),
		IdleTestThreshold: idleTest,
		MaxLifetime:       maxLifetime,
		MaxUsage:          v.GetInt("pool.max_usage"),
		MaxErrors:         v.GetInt("pool.max_errors"),
		AcquireTimeout:    acquireTimeout,
		RetryBaseDelay:    retryBaseDelay,
		MaxRetries:        v.GetInt("pool.max_retries"),
	}, nil
}
