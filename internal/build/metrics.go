package build

import (
	"sync"
	"time"
)

// FileOutcome says what happened to one entry.
type FileOutcome int

const (
	OutcomeRendered FileOutcome = iota
	OutcomeCopied
	OutcomeFailed
)

// FileResult is the result of processing one entry.
type FileResult struct {
	Key      string
	Output   string
	Outcome  FileOutcome
	Bytes    int
	Duration time.Duration
	Error    error
}

// BuildMetrics tracks build performance
type BuildMetrics struct {
	TotalFiles      int64
	RenderedFiles   int64
	CopiedFiles     int64
	FailedFiles     int64
	BytesWritten    int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordFile records a file result in the metrics
func (bm *BuildMetrics) RecordFile(result FileResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalFiles++
	bm.TotalDuration += result.Duration

	switch result.Outcome {
	case OutcomeRendered:
		bm.RenderedFiles++
		bm.BytesWritten += int64(result.Bytes)
	case OutcomeCopied:
		bm.CopiedFiles++
		bm.BytesWritten += int64(result.Bytes)
	case OutcomeFailed:
		bm.FailedFiles++
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalFiles)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalFiles:      bm.TotalFiles,
		RenderedFiles:   bm.RenderedFiles,
		CopiedFiles:     bm.CopiedFiles,
		FailedFiles:     bm.FailedFiles,
		BytesWritten:    bm.BytesWritten,
		AverageDuration: bm.AverageDuration,
		TotalDuration:   bm.TotalDuration,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalFiles = 0
	bm.RenderedFiles = 0
	bm.CopiedFiles = 0
	bm.FailedFiles = 0
	bm.BytesWritten = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
}

// GetSuccessRate returns the share of files that did not fail, as a
// percentage.
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalFiles == 0 {
		return 0.0
	}

	return float64(bm.TotalFiles-bm.FailedFiles) / float64(bm.TotalFiles) * 100.0
}
