// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

const defaultSecret = "dev-secret"

type Config struct {
	Addr          string
	DatabaseURL   string // empty runs everything in memory
	QuestionsFile string
	AuthSecret    string
	LogLevel      string
	Dev           bool

	GracePeriod      time.Duration
	RevealDwell      time.Duration
	TickInterval     time.Duration
	BotMinDelay      time.Duration
	BotAccuracy      float64
	PublishRetries   int
	SubscriberBuffer int
}

// Load reads .env files if present (existing variables win) and then the
// environment. All bad values are reported together.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs error
	c := Config{
		Addr:          str("ADDR", ":8080"),
		DatabaseURL:   str("DATABASE_URL", ""),
		QuestionsFile: str("QUESTIONS_FILE", "data/questions.json"),
		AuthSecret:    str("AUTH_SECRET", defaultSecret),
		LogLevel:      str("LOG_LEVEL", "info"),
	}
	c.Dev = boolean("DEV", false, &errs)
	c.GracePeriod = duration("GRACE_PERIOD", 30*time.Second, &errs)
	c.RevealDwell = duration("REVEAL_DWELL", 4*time.Second, &errs)
	c.TickInterval = duration("TICK_INTERVAL", 250*time.Millisecond, &errs)
	c.BotMinDelay = duration("BOT_MIN_DELAY", 1500*time.Millisecond, &errs)
	c.BotAccuracy = float("BOT_ACCURACY", 0.6, &errs)
	c.PublishRetries = integer("PUBLISH_RETRIES", 3, &errs)
	c.SubscriberBuffer = integer("SUBSCRIBER_BUFFER", 32, &errs)

	if c.BotAccuracy < 0 || c.BotAccuracy > 1 {
		errs = multierr.Append(errs, fmt.Errorf("BOT_ACCURACY must be within [0,1], got %v", c.BotAccuracy))
	}
	if c.TickInterval <= 0 {
		errs = multierr.Append(errs, errors.New("TICK_INTERVAL must be positive"))
	}
	return c, errs
}

// DefaultSecret reports whether tokens are signed with the built-in secret.
func (c Config) DefaultSecret() bool { return c.AuthSecret == defaultSecret }

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parse[T any](key string, def T, errs *error, fn func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	out, err := fn(v)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s=%q: %w", key, v, err))
		return def
	}
	return out
}

func duration(key string, def time.Duration, errs *error) time.Duration {
	return parse(key, def, errs, time.ParseDuration)
}

func integer(key string, def int, errs *error) int {
	return parse(key, def, errs, strconv.Atoi)
}

func float(key string, def float64, errs *error) float64 {
	return parse(key, def, errs, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func boolean(key string, def bool, errs *error) bool {
	return parse(key, def, errs, strconv.ParseBool)
}
