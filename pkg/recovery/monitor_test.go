package recovery

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SweepReportsSpike(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newTestCoordinator(WithLogger(logger))
	m := NewMonitor(c)

	for i := range 40 {
		c.hist.append(TypeDatabase, fmt.Sprintf("db-%d", i), "", "")
	}
	for i := range 15 {
		c.hist.append(TypeTimeout, fmt.Sprintf("to-%d", i), "", "")
	}

	m.sweep()

	out := buf.String()
	assert.Contains(t, out, "error rate spike")
	assert.Contains(t, out, "total=55")
	assert.Contains(t, out, "DatabaseError=40")
	assert.Contains(t, out, "TimeoutError=15")
}

func TestMonitor_SweepQuietBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := newTestCoordinator(WithLogger(logger))
	m := NewMonitor(c)

	for i := range 50 {
		c.hist.append(TypeDatabase, fmt.Sprintf("db-%d", i), "", "")
	}

	m.sweep()
	assert.NotContains(t, buf.String(), "error rate spike")
}

func TestMonitor_SweepEvictsExpired(t *testing.T) {
	now := time.Now()
	clock := now
	c := newTestCoordinator(
		WithClock(func() time.Time { return clock }),
		WithRetention(24*time.Hour),
	)
	m := NewMonitor(c)

	c.hist.append(TypeUnknown, "stale", "", "")
	clock = now.Add(25 * time.Hour)
	c.hist.append(TypeUnknown, "fresh", "", "")

	m.sweep()

	require.Equal(t, 1, c.hist.size())
	assert.Equal(t, "fresh", c.hist.snapshot()[0].Message)
}

func TestMonitor_StartStop(t *testing.T) {
	m := NewMonitor(newTestCoordinator())
	require.NoError(t, m.Start())
	m.Stop()
}
