package operations

import (
	"fmt"
	"sync"
	"time"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ProgressFunc receives import progress. It is called on the import
// goroutine and the import waits for it to return, so it must not block
// for long.
type ProgressFunc func(domain.ImportProgress)

// ProgressTracker tracks progress for one import run
type ProgressTracker struct {
	RunID     string
	Total     int
	Current   int
	StartTime time.Time
	Message   string
	mu        sync.Mutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(runID string, total int) *ProgressTracker {
	return &ProgressTracker{
		RunID:     runID,
		Total:     total,
		StartTime: time.Now(),
	}
}

// Update sets the current progress
func (p *ProgressTracker) Update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Current = current
	p.Message = message
}

// Increment increments the current progress by 1
func (p *ProgressTracker) Increment(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Current++
	p.Message = message
}

// GetProgress returns the current progress state
func (p *ProgressTracker) GetProgress() (current, total int, percentage float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Total > 0 {
		percentage = float64(p.Current) / float64(p.Total) * 100
	}
	return p.Current, p.Total, percentage, p.Message
}

// GetETA calculates the estimated time remaining
func (p *ProgressTracker) GetETA() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Current == 0 || p.Total == 0 {
		return "calculating..."
	}

	elapsed := time.Since(p.StartTime)
	rate := float64(p.Current) / elapsed.Seconds()
	if rate == 0 {
		return "calculating..."
	}

	remaining := float64(p.Total-p.Current) / rate
	switch {
	case remaining < 60:
		return fmt.Sprintf("%.0f seconds", remaining)
	case remaining < 3600:
		return fmt.Sprintf("%.1f minutes", remaining/60)
	default:
		return fmt.Sprintf("%.1f hours", remaining/3600)
	}
}

// IsComplete returns true once every unit of work is done
func (p *ProgressTracker) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.Current >= p.Total
}

// Snapshot builds the progress event for a phase from the tracker state.
func (p *ProgressTracker) Snapshot(phase domain.ImportPhase, file, sheet string) domain.ImportProgress {
	current, total, pct, msg := p.GetProgress()
	return domain.ImportProgress{
		RunID:   p.RunID,
		Phase:   phase,
		File:    file,
		Sheet:   sheet,
		Current: current,
		Total:   total,
		Percent: pct,
		ETA:     p.GetETA(),
		Message: msg,
	}
}
