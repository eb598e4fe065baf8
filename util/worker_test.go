package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorker(t *testing.T) {
	var wg sync.WaitGroup
	var count atomic.Int32
	w := NewWorker("test", &wg, RunFunc, 4, 2)
	w.Start()

	for i := 0; i < 50; i++ {
		w.Submit(func() {
			count.Add(1)
		})
	}
	w.Submit(func() {
		panic("boom")
	})
	require.Eventually(t, func() bool {
		return count.Load() == 50
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	wg.Wait()
}

func TestTickWorker(t *testing.T) {
	var wg sync.WaitGroup
	var count atomic.Int32
	tw := NewTickWorker("tick", 10*time.Millisecond, func() {
		count.Add(1)
	}, &wg)
	tw.Start()
	require.True(t, tw.IsRunning())
	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, tw.Stop())
	wg.Wait()
	require.False(t, tw.IsRunning())
}
