// Package config provides typed access to dynamic configuration values.
package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNoValue indicates no value was set for the config
var ErrNoValue = errors.New("config: no value set")

// Bool provides a boolean typed config value.
type Bool interface {
	Get(ctx context.Context) bool
	GetSafe(ctx context.Context) (bool, error)
}

// Duration provides a time.Duration typed config value.
type Duration interface {
	Get(ctx context.Context) time.Duration
	GetSafe(ctx context.Context) (time.Duration, error)
}

// Uint64 provides a uint64 typed config value.
type Uint64 interface {
	Get(ctx context.Context) uint64
	GetSafe(ctx context.Context) (uint64, error)
}

// String provides a string typed config value.
type String interface {
	Get(ctx context.Context) string
	GetSafe(ctx context.Context) (string, error)
}
