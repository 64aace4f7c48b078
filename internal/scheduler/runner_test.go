package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(context.Background())
	_, err := r.Add("bad", "not a spec", func(context.Context) {})
	assert.Error(t, err)
}

func TestRunnerRunsAndSurvivesPanic(t *testing.T) {
	r := New(context.Background())
	var runs int32
	_, err := r.Add("tick", "* * * * * *", func(context.Context) {
		if atomic.AddInt32(&runs, 1) == 1 {
			panic("boom")
		}
	})
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 4*time.Second, 50*time.Millisecond)
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	r := New(context.Background())
	assert.True(t, r.begin("job"))
	assert.False(t, r.begin("job"))
	r.end("job")
	assert.True(t, r.begin("job"))
}
