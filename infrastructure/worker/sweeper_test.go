package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/usecase"
)

type countingScheduler struct {
	usecase.ISchedulerUsecase
	sweeps atomic.Int32
}

func (c *countingScheduler) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	c.sweeps.Add(1)
	return usecase.SweepReport{Due: 1, Claimed: 1, Done: 1}, nil
}

func TestSweeper_RunsUntilCancelled(t *testing.T) {
	uc := &countingScheduler{}
	s := NewSweeper(uc, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	assert.Eventually(t, func() bool { return uc.sweeps.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)
	seen := uc.sweeps.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, seen, uc.sweeps.Load())
}

func TestSweeper_DefaultInterval(t *testing.T) {
	s := NewSweeper(&countingScheduler{}, 0)
	assert.Equal(t, 15*time.Second, s.interval)
}
