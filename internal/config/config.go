// Package config loads settings for the bidding binaries from an optional
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bidding/internal/stress"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

// Server holds everything cmd/bidding-server needs.
type Server struct {
	Addr      string
	AdminAddr string
	LogLevel  string

	Store string

	RedisAddr         string
	RedisPoolSize     int
	RedisMinIdleConns int

	MongoURI      string
	MongoDatabase string

	// AMQPURL enables won-bid events when set.
	AMQPURL      string
	AMQPExchange string

	BidAmount   float64
	BidTimeout  time.Duration
	SpendLimit  float64
	SpendWindow time.Duration
}

// LoadDotEnv reads the given files (".env" when none) into the environment.
// Missing files are not an error; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}

	return nil
}

// LoadServer builds the server configuration from the environment.
func LoadServer() (Server, error) {
	var (
		cfg Server
		p   parser
	)

	cfg.Addr = getenv("BIDDING_ADDR", ":8080")
	cfg.AdminAddr = getenv("BIDDING_ADMIN_ADDR", ":8081")
	cfg.LogLevel = getenv("LOG_LEVEL", "info")
	cfg.Store = strings.ToLower(getenv("BIDDING_STORE", StoreMemory))

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPoolSize = p.intVar("REDIS_POOL_SIZE", 10)
	cfg.RedisMinIdleConns = p.intVar("REDIS_MIN_IDLE_CONNS", 5)

	cfg.MongoURI = os.Getenv("MONGO_URI")
	cfg.MongoDatabase = getenv("MONGO_DATABASE", "bidding")

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = getenv("AMQP_EXCHANGE", "bids")

	cfg.BidAmount = p.floatVar("BID_AMOUNT", 1.0)
	cfg.BidTimeout = p.durationVar("BID_TIMEOUT", 500*time.Millisecond)
	cfg.SpendLimit = p.floatVar("SPEND_LIMIT", 10.0)
	cfg.SpendWindow = p.durationVar("SPEND_WINDOW", 10*time.Second)

	if p.err != nil {
		return Server{}, p.err
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late at startup.
func (s Server) Validate() error {
	switch s.Store {
	case StoreMemory, StoreRedis:
	case StoreMongo:
		if s.MongoURI == "" {
			return errors.New("config: MONGO_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown BIDDING_STORE %q", s.Store)
	}

	if s.BidAmount <= 0 {
		return fmt.Errorf("config: BID_AMOUNT must be positive, got %v", s.BidAmount)
	}

	if s.BidTimeout <= 0 {
		return fmt.Errorf("config: BID_TIMEOUT must be positive, got %s", s.BidTimeout)
	}

	if s.SpendWindow <= 0 {
		return fmt.Errorf("config: SPEND_WINDOW must be positive, got %s", s.SpendWindow)
	}

	return nil
}

// LoadStress returns the stress defaults overridden by STRESS_* variables.
// Flags are applied on top by the caller.
func LoadStress() (stress.Config, error) {
	cfg := stress.DefaultConfig()

	var p parser

	cfg.URL = getenv("STRESS_URL", cfg.URL)
	cfg.Count = p.intVar("STRESS_COUNT", cfg.Count)
	cfg.Stagger = p.durationVar("STRESS_STAGGER", cfg.Stagger)
	cfg.Timeout = p.durationVar("STRESS_TIMEOUT", cfg.Timeout)

	if v := os.Getenv("STRESS_KEYWORDS"); v != "" {
		cfg.Keywords = splitList(v)
	}

	return cfg, p.err
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func splitList(v string) []string {
	var out []string

	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// parser keeps the first conversion error so callers check once.
type parser struct {
	err error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
}

func (p *parser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}

	return n
}

func (p *parser) floatVar(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}

	return f
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}

	return d
}
