package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	sm.Register("database", record("database"))
	sm.Register("redis", record("redis"))
	sm.Register("http", record("http"))
	sm.Register("ignored", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "redis", "database"}, order)
}

func TestShutdownManager_JoinsErrors(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	errA := errors.New("a failed")

	ran := false
	sm.Register("a", func(context.Context) error { return errA })
	sm.Register("b", func(context.Context) error { panic("boom") })
	sm.Register("c", func(context.Context) error { ran = true; return nil })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.True(t, ran)
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), 20*time.Millisecond)
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecoverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverPanic(NopLogger(), "test")
		panic("kaboom")
	})
}
