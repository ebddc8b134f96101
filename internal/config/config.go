package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SYNAPSEFLOW_ENV (or .env by default),
// then loads the corresponding .secret sidecar if it exists. All flat config
// is env vars read via os.Getenv after loading; structured tuning tables come
// from the YAML file returned by TuningPath.
func Load() error {
	envFile := os.Getenv("SYNAPSEFLOW_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// TuningPath returns the path of the YAML tuning file. Empty means built-in
// defaults only.
func TuningPath() string {
	return os.Getenv("TUNING_PATH")
}

// ScanInterval returns how often the promotion scanner sweeps all tiers.
// Defaults to 5 minutes.
func ScanInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SCAN_INTERVAL"))
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// SweepBatchSize bounds how many candidates one sweep pulls per tier.
// Defaults to 100.
func SweepBatchSize() int {
	n, err := strconv.Atoi(os.Getenv("SWEEP_BATCH_SIZE"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

// SweepLeaseTTL returns how long a tier sweep lease is held before it is
// considered abandoned. Defaults to 10 minutes.
func SweepLeaseTTL() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SWEEP_LEASE_TTL"))
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// OutboxInterval returns how often the event dispatcher drains the outbox.
// Defaults to 5 seconds.
func OutboxInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("OUTBOX_INTERVAL"))
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// RateLimitRPS returns requests per second limit. Defaults to 100.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting. Defaults to 20.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// ScanRateLimitRPS returns the tighter per-IP budget for the manual scan
// trigger. Defaults to 1.
func ScanRateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("SCAN_RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 1
	}
	return rps
}

// ScanRateLimitBurst returns the burst size for the scan trigger budget.
// Defaults to 2.
func ScanRateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("SCAN_RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 2
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error). Defaults to
// "info".
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
