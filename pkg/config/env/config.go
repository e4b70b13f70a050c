// Package env provides config values pulled from environment variables.
package env

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudfusionadmin/filevaults/pkg/config"
)

// ErrInvalidValue indicates the environment variable could not be converted
// to the config's type.
var ErrInvalidValue = errors.New("config: invalid value for type")

type value struct {
	raw string
}

func newValue(key string) value {
	return value{raw: os.Getenv(strings.ToUpper(key))}
}

type boolConfig struct {
	value
	defaultValue bool
}

// NewBoolConfig creates an env-based bool config
func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return &boolConfig{newValue(key), defaultValue}
}

func (c *boolConfig) GetSafe(_ context.Context) (bool, error) {
	if len(c.raw) == 0 {
		return c.defaultValue, config.ErrNoValue
	}

	parsed, err := strconv.ParseBool(c.raw)
	if err != nil {
		return c.defaultValue, ErrInvalidValue
	}
	return parsed, nil
}

func (c *boolConfig) Get(ctx context.Context) bool {
	val, _ := c.GetSafe(ctx)
	return val
}

type durationConfig struct {
	value
	defaultValue time.Duration
}

// NewDurationConfig creates an env-based duration config
func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return &durationConfig{newValue(key), defaultValue}
}

func (c *durationConfig) GetSafe(_ context.Context) (time.Duration, error) {
	if len(c.raw) == 0 {
		return c.defaultValue, config.ErrNoValue
	}

	parsed, err := time.ParseDuration(c.raw)
	if err != nil {
		return c.defaultValue, ErrInvalidValue
	}
	return parsed, nil
}

func (c *durationConfig) Get(ctx context.Context) time.Duration {
	val, _ := c.GetSafe(ctx)
	return val
}

type uint64Config struct {
	value
	defaultValue uint64
}

// NewUint64Config creates an env-based uint64 config
func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return &uint64Config{newValue(key), defaultValue}
}

func (c *uint64Config) GetSafe(_ context.Context) (uint64, error) {
	if len(c.raw) == 0 {
		return c.defaultValue, config.ErrNoValue
	}

	parsed, err := strconv.ParseUint(c.raw, 10, 64)
	if err != nil {
		return c.defaultValue, ErrInvalidValue
	}
	return parsed, nil
}

func (c *uint64Config) Get(ctx context.Context) uint64 {
	val, _ := c.GetSafe(ctx)
	return val
}

type stringConfig struct {
	value
	defaultValue string
}

// NewStringConfig creates an env-based string config
func NewStringConfig(key string, defaultValue string) config.String {
	return &stringConfig{newValue(key), defaultValue}
}

func (c *stringConfig) GetSafe(_ context.Context) (string, error) {
	if len(c.raw) == 0 {
		return c.defaultValue, config.ErrNoValue
	}
	return c.raw, nil
}

func (c *stringConfig) Get(ctx context.Context) string {
	val, _ := c.GetSafe(ctx)
	return val
}
