package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsImmediatelyAndOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})
	go func() {
		Every(ctx, 10*time.Millisecond, "tick", func(context.Context) error {
			n.Add(1)
			return errors.New("ignored")
		})
		close(done)
	}()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestCronRejectsBadSpec(t *testing.T) {
	err := Cron(context.Background(), "not a spec", "bad", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestCronFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- Cron(ctx, "@every 1s", "run", func(context.Context) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("cron never fired")
	}
	cancel()
	require.NoError(t, <-errc)
}
