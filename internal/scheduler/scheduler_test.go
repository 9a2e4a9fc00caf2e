package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	fail bool
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.fail {
		return errors.New("boom")
	}
	return nil
}

func (j *countingJob) Name() string { return j.name }

func TestSchedulerAddJobValidatesSchedule(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "bad"}))
	assert.NoError(t, s.AddJob("0 0 16 * * MON-FRI", &countingJob{name: "good"}))
}

func TestSchedulerRunNow(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())

	job := &countingJob{name: "once"}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())

	failing := &countingJob{name: "broken", fail: true}
	assert.Error(t, s.RunNow(failing))
	assert.Equal(t, int32(1), failing.runs.Load())
}

func TestSchedulerRunsRegisteredJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}

	s := New(time.UTC, zerolog.Nop())

	// The cron library rounds @every below one second up to a second,
	// so a full tick has to be waited out.
	job := &countingJob{name: "ticker"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	time.Sleep(1500 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, job.runs.Load(), int32(1))
}
