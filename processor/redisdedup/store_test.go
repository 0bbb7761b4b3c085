package redisdedup

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/processor"
)

var _ processor.DedupStore = (*Store)(nil)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	_, err = New(client, WithKeyPrefix(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	s, err := New(client, WithKeyPrefix("tenant-a:"))
	require.NoError(t, err)
	assert.Equal(t, "tenant-a:m1", s.key("m1"))
	assert.NoError(t, s.Close(), "borrowed clients are left open")
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	_, err = Dial(ctx, "")
	assert.True(t, errors.IsInvalid(err))
}
