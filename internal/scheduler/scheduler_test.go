package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	err      error
	runs     int
}

func (j *stubJob) Name() string                { return j.name }
func (j *stubJob) Schedule() string            { return j.schedule }
func (j *stubJob) Run(_ context.Context) error { j.runs++; return j.err }

func TestAddJob_RejectsDuplicates(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "@hourly"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "@hourly"}))
}

func TestAddJob_RejectsBadSchedule(t *testing.T) {
	s := New(logger.Nop())
	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "not a cron expr"}))
}

func TestRunJob_UnknownJob(t *testing.T) {
	s := New(logger.Nop())
	assert.Error(t, s.RunJob("missing"))
}

func TestRunJob_RecordsHistory(t *testing.T) {
	s := New(logger.Nop())
	s.retryDelay = time.Millisecond

	ok := &stubJob{name: "ok", schedule: "@hourly"}
	bad := &stubJob{name: "bad", schedule: "@hourly", err: errors.New("boom")}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	s.runJob(ok)
	s.runJob(bad)

	stats := s.Stats()
	assert.Equal(t, 1, stats["ok"].SuccessCount)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)

	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.Equal(t, "boom", stats["bad"].LastError)
	assert.Equal(t, 1+s.maxRetries, bad.runs, "failed job is retried")

	assert.ElementsMatch(t, []string{"ok", "bad"}, s.JobNames())
}
