package operations_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AdrianZavoianu/RPS-sub000/internal/operations"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

func TestNewProgressTracker(t *testing.T) {
	tracker := operations.NewProgressTracker("run-1", 10)

	assert.Equal(t, "run-1", tracker.RunID)
	assert.Equal(t, 10, tracker.Total)
	assert.Equal(t, 0, tracker.Current)
	assert.Empty(t, tracker.Message)
	assert.WithinDuration(t, time.Now(), tracker.StartTime, time.Second)
}

func TestProgressTrackerGetProgress(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		current    int
		percentage float64
	}{
		{name: "not started", total: 4, current: 0, percentage: 0},
		{name: "half way", total: 4, current: 2, percentage: 50},
		{name: "complete", total: 4, current: 4, percentage: 100},
		{name: "zero total", total: 0, current: 0, percentage: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := operations.NewProgressTracker("run", tt.total)
			tracker.Update(tt.current, "working")

			current, total, pct, msg := tracker.GetProgress()
			assert.Equal(t, tt.current, current)
			assert.Equal(t, tt.total, total)
			assert.InDelta(t, tt.percentage, pct, 1e-9)
			assert.Equal(t, "working", msg)
		})
	}
}

func TestProgressTrackerIncrementConcurrent(t *testing.T) {
	tracker := operations.NewProgressTracker("run", 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment("file")
		}()
	}
	wg.Wait()

	assert.True(t, tracker.IsComplete())
	current, _, _, _ := tracker.GetProgress()
	assert.Equal(t, 50, current)
}

func TestProgressTrackerGetETA(t *testing.T) {
	tracker := operations.NewProgressTracker("run", 10)
	assert.Equal(t, "calculating...", tracker.GetETA())

	tracker.StartTime = time.Now().Add(-10 * time.Second)
	tracker.Update(5, "")
	assert.Contains(t, tracker.GetETA(), "seconds")

	tracker.StartTime = time.Now().Add(-10 * time.Minute)
	tracker.Update(1, "")
	assert.Contains(t, tracker.GetETA(), "hours")
}

func TestProgressTrackerSnapshot(t *testing.T) {
	tracker := operations.NewProgressTracker("run-7", 2)
	tracker.Increment("a.xlsx")

	p := tracker.Snapshot(domain.PhaseSheet, "a.xlsx", "Story Drifts")
	assert.Equal(t, "run-7", p.RunID)
	assert.Equal(t, domain.PhaseSheet, p.Phase)
	assert.Equal(t, "a.xlsx", p.File)
	assert.Equal(t, "Story Drifts", p.Sheet)
	assert.Equal(t, 1, p.Current)
	assert.Equal(t, 2, p.Total)
	assert.InDelta(t, 50, p.Percent, 1e-9)
	assert.Equal(t, "a.xlsx", p.Message)
	assert.NotEmpty(t, p.ETA)
}
