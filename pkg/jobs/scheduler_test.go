package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(time.UTC, time.Second, nil)
	err := s.Register("broken", "not a spec", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerRunAppliesTimeout(t *testing.T) {
	s := NewScheduler(nil, 10*time.Millisecond, nil)
	var deadlineSet bool
	s.run("probe", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return errors.New("ignored")
	})
	assert.True(t, deadlineSet)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(time.UTC, time.Second, nil)
	require.NoError(t, s.Register("sweep", "@every 1h", func(ctx context.Context) error { return nil }))
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
