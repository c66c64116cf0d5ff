package ticker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_Repeats(t *testing.T) {
	var count atomic.Int32
	task := New(nil, 5*time.Millisecond, func(ctx context.Context) { count.Add(1) })

	require.NoError(t, task.Start(context.Background()))
	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)

	task.Stop()
	<-task.Done()
}

func TestTask_NoOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	task := New(nil, time.Millisecond, func(ctx context.Context) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(3 * time.Millisecond)
		active.Add(-1)
	})

	require.NoError(t, task.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	task.Stop()
	<-task.Done()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestTask_StopCancelsRunningTick(t *testing.T) {
	entered := make(chan struct{})
	var sawCancel atomic.Bool
	var count atomic.Int32
	task := New(nil, time.Millisecond, func(ctx context.Context) {
		if count.Add(1) == 1 {
			close(entered)
			<-ctx.Done()
			sawCancel.Store(true)
		}
	})

	require.NoError(t, task.Start(context.Background()))
	<-entered
	task.Stop()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit after Stop")
	}
	assert.True(t, sawCancel.Load())
	assert.Equal(t, int32(1), count.Load())
}

func TestTask_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := New(nil, time.Hour, func(context.Context) {})

	require.NoError(t, task.Start(ctx))
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit after parent cancel")
	}
}

func TestTask_StartTwice(t *testing.T) {
	task := New(nil, time.Hour, func(context.Context) {})
	require.NoError(t, task.Start(context.Background()))
	assert.ErrorIs(t, task.Start(context.Background()), ErrStarted)
	task.Stop()
	task.Stop()
	<-task.Done()
}

func TestTask_StopBeforeStart(t *testing.T) {
	task := New(nil, time.Hour, func(context.Context) {})
	task.Stop()

	<-task.Done()
	assert.ErrorIs(t, task.Start(context.Background()), ErrStarted)
}
