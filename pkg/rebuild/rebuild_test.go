package rebuild

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/bdev"
)

func openMalloc(t *testing.T, name string, numBlocks uint64) bdev.BlockDeviceHandle {
	t.Helper()
	dev := bdev.NewMalloc(name, bdev.Geometry{BlockSize: 4096, NumBlocks: numBlocks})
	h, err := dev.Open(context.Background(), 0)
	require.NoError(t, err)
	return h
}

func TestJob_CompletesCopyingAllBlocks(t *testing.T) {
	src := openMalloc(t, t.Name()+"-src", 64)
	dst := openMalloc(t, t.Name()+"-dst", 64)

	pattern := make([]byte, 4096)
	for i := range pattern {
		pattern[i] = 0x55
	}
	_, err := src.WriteAt(context.Background(), 0, pattern)
	require.NoError(t, err)

	job := NewJob("malloc:///src", "malloc:///dst", src, dst, 4096, 64, 8)
	job.Run(context.Background())

	assert.Equal(t, StateCompleted, job.State())
	copied, total := job.Progress()
	assert.Equal(t, total, copied)

	readBack := make([]byte, 4096)
	_, err = dst.ReadAt(context.Background(), 0, readBack)
	require.NoError(t, err)
	assert.Equal(t, pattern, readBack)
}

func TestJob_PauseResumeCompletes(t *testing.T) {
	src := openMalloc(t, t.Name()+"-src", 256)
	dst := openMalloc(t, t.Name()+"-dst", 256)

	job := NewJob("malloc:///src2", "malloc:///dst2", src, dst, 4096, 256, 4)

	go job.Run(context.Background())

	// Give the loop a moment to enter Running before pausing.
	for i := 0; i < 100 && job.State() == StateInit; i++ {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, job.Pause())

	for i := 0; i < 500 && job.State() != StatePaused && job.State() != StateCompleted; i++ {
		time.Sleep(time.Millisecond)
	}

	if job.State() == StatePaused {
		require.NoError(t, job.Resume())
	}

	job.Wait()
	assert.Equal(t, StateCompleted, job.State())
}

func TestJob_StopTransitionsToStopped(t *testing.T) {
	src := openMalloc(t, t.Name()+"-src", 1<<20)
	dst := openMalloc(t, t.Name()+"-dst", 1<<20)

	job := NewJob("malloc:///src3", "malloc:///dst3", src, dst, 4096, 1<<20, 1)
	go job.Run(context.Background())

	time.Sleep(2 * time.Millisecond)
	job.Stop()
	job.Wait()

	assert.Equal(t, StateStopped, job.State())
}

func TestJob_FailsOnReadError(t *testing.T) {
	src := &failingRebuildHandle{fail: true}
	dst := openMalloc(t, t.Name()+"-dst", 64)

	job := NewJob("malloc:///src4", "malloc:///dst4", src, dst, 4096, 64, 8)
	job.Run(context.Background())

	assert.Equal(t, StateFailed, job.State())
}
