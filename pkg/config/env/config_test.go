package env

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfusionadmin/filevaults/pkg/config"
)

func TestEnvConfig(t *testing.T) {
	ctx := context.Background()

	t.Setenv("TEST_STRING_VALUE", "value")
	t.Setenv("TEST_UINT64_VALUE", "42")
	t.Setenv("TEST_DURATION_VALUE", "15m")
	t.Setenv("TEST_BOOL_VALUE", "true")
	t.Setenv("TEST_MALFORMED_VALUE", "not-a-number")

	assert.Equal(t, "value", NewStringConfig("test_string_value", "default").Get(ctx))
	assert.EqualValues(t, 42, NewUint64Config("test_uint64_value", 0).Get(ctx))
	assert.Equal(t, 15*time.Minute, NewDurationConfig("test_duration_value", time.Second).Get(ctx))
	assert.True(t, NewBoolConfig("test_bool_value", false).Get(ctx))

	_, err := NewStringConfig("test_unset_value", "default").GetSafe(ctx)
	assert.Equal(t, config.ErrNoValue, err)
	assert.Equal(t, "default", NewStringConfig("test_unset_value", "default").Get(ctx))

	val, err := NewUint64Config("test_malformed_value", 7).GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidValue, err)
	assert.EqualValues(t, 7, val)
}
