package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	RNGSeed         string // non-empty: reproducible materialization
	StrictIntegrity bool

	SeedFile      string // YAML question bank loaded at startup
	SweepSchedule string // cron spec; empty disables the sweeper
	EventSiteID   string
}

// Load reads an optional .env file, then the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://tests.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),
		RNGSeed:            os.Getenv("RNG_SEED"),
		StrictIntegrity:    envBool("STRICT_INTEGRITY", false),
		SeedFile:           os.Getenv("SEED_FILE"),
		SweepSchedule:      envDefault("SWEEP_SCHEDULE", "@every 1m"),
		EventSiteID:        envOr("EVENT_SITE_ID", "local"),
	}
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// envDefault is envOr that lets an explicitly empty variable through.
func envDefault(k, def string) string {
	v, ok := os.LookupEnv(k)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
