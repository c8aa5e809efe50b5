// Package config loads Engine tuning parameters from the environment
// (following the mape service's getEnv/getEnvInt idiom) or from an
// optional YAML override file, in the struct-tag style codenerd's
// config package uses for its own YAML settings file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ctxrules/engine/internal/rules"
)

// Config holds the tunables spec.md leaves to the caller: bandit
// parameters, event buffer bounds, and default rate limits.
type Config struct {
	EpsilonGreedy    float64          `yaml:"epsilonGreedy"`
	LinUCBAlpha      float64          `yaml:"linucbAlpha"`
	EventBufferSize  int              `yaml:"eventBufferSize"`
	EventBufferMaxMs int64            `yaml:"eventBufferMaxMs"`
	RateLimits       rules.RateLimits `yaml:"rateLimits"`
}

// Default returns the engine's stated defaults (spec.md §3/§4.6/§6):
// a 100-event buffer aged out after 24h, ε=0.1, LinUCB α=1.0.
func Default() Config {
	return Config{
		EpsilonGreedy:    0.1,
		LinUCBAlpha:      1.0,
		EventBufferSize:  100,
		EventBufferMaxMs: 24 * 60 * 60 * 1000,
		RateLimits:       rules.DefaultRateLimits(),
	}
}

// FromEnv overlays environment variables onto the defaults. Unset
// variables leave the default in place.
func FromEnv() Config {
	c := Default()
	c.EpsilonGreedy = getEnvFloat("CTXRULES_EPSILON", c.EpsilonGreedy)
	c.LinUCBAlpha = getEnvFloat("CTXRULES_LINUCB_ALPHA", c.LinUCBAlpha)
	c.EventBufferSize = getEnvInt("CTXRULES_EVENT_BUFFER_SIZE", c.EventBufferSize)
	c.EventBufferMaxMs = getEnvInt64("CTXRULES_EVENT_BUFFER_MAX_MS", c.EventBufferMaxMs)
	c.RateLimits.CategoryCooldownCount = getEnvInt("CTXRULES_CATEGORY_COOLDOWN_COUNT", c.RateLimits.CategoryCooldownCount)
	c.RateLimits.CategoryCooldownWindowMs = getEnvInt64("CTXRULES_CATEGORY_COOLDOWN_WINDOW_MS", c.RateLimits.CategoryCooldownWindowMs)
	c.RateLimits.GlobalMaxPerHour = getEnvInt("CTXRULES_GLOBAL_MAX_PER_HOUR", c.RateLimits.GlobalMaxPerHour)
	return c
}

// FromYAML reads a Config from a YAML file, starting from Default() so
// the file only needs to specify overrides.
func FromYAML(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
