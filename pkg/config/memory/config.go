// Package memory provides settable in-memory configs used for testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/config"
)

type Bool struct {
	mu    sync.RWMutex
	value bool
}

// NewBoolConfig creates a settable in-memory bool config
func NewBoolConfig(value bool) *Bool {
	return &Bool{value: value}
}

func (c *Bool) GetSafe(_ context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, nil
}

func (c *Bool) Get(ctx context.Context) bool {
	val, _ := c.GetSafe(ctx)
	return val
}

// SetValue sets the value returned on subsequent Get calls
func (c *Bool) SetValue(value bool) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

type Duration struct {
	mu    sync.RWMutex
	value time.Duration
}

// NewDurationConfig creates a settable in-memory duration config
func NewDurationConfig(value time.Duration) *Duration {
	return &Duration{value: value}
}

func (c *Duration) GetSafe(_ context.Context) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, nil
}

func (c *Duration) Get(ctx context.Context) time.Duration {
	val, _ := c.GetSafe(ctx)
	return val
}

// SetValue sets the value returned on subsequent Get calls
func (c *Duration) SetValue(value time.Duration) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

type Uint64 struct {
	mu    sync.RWMutex
	value uint64
}

// NewUint64Config creates a settable in-memory uint64 config
func NewUint64Config(value uint64) *Uint64 {
	return &Uint64{value: value}
}

func (c *Uint64) GetSafe(_ context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, nil
}

func (c *Uint64) Get(ctx context.Context) uint64 {
	val, _ := c.GetSafe(ctx)
	return val
}

// SetValue sets the value returned on subsequent Get calls
func (c *Uint64) SetValue(value uint64) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

type String struct {
	mu    sync.RWMutex
	value string
}

// NewStringConfig creates a settable in-memory string config
func NewStringConfig(value string) *String {
	return &String{value: value}
}

func (c *String) GetSafe(_ context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, nil
}

func (c *String) Get(ctx context.Context) string {
	val, _ := c.GetSafe(ctx)
	return val
}

// SetValue sets the value returned on subsequent Get calls
func (c *String) SetValue(value string) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// interface assertions
var (
	_ config.Bool     = (*Bool)(nil)
	_ config.Duration = (*Duration)(nil)
	_ config.Uint64   = (*Uint64)(nil)
	_ config.String   = (*String)(nil)
)
