// Package model contains domain models passed between layers.
package model

import "time"

// ProgressEvent is a learner's aggregated progress snapshot as submitted by
// the app layer. Fields mirror the OpenAPI schema for /progress.
type ProgressEvent struct {
	EventID  string // unique id for idempotency
	UserID   int64
	Category string // ground-truth label, may be empty

	XPEarned   float64
	XPPossible float64

	LessonsCompleted int
	LessonsTotal     int
	TotalMinutes     float64

	AverageDifficulty float64 // 0..MaxDifficulty
	MaxDifficulty     float64

	StreakDays  int
	AccessTimes []time.Time // lesson access timestamps

	TS time.Time // submission time
}

// Sessions is the number of recorded lesson accesses.
func (e ProgressEvent) Sessions() int { return len(e.AccessTimes) }
