package webhook

import "time"

// Metrics receives pipeline observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordEvent(source SourceFamily, action Action, outcome string)
	RecordProcessingDuration(source SourceFamily, d time.Duration)
	RecordUserCreated(source SourceFamily)
	RecordSubscriptionCreated(source SourceFamily)
	RecordSubscriptionsCancelled(source SourceFamily, n int64)
	RecordConflict(kind string)
	RecordReplay(outcome string)
}

// Outcomes reported to Metrics.RecordEvent and RecordReplay.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Conflict kinds reported to Metrics.RecordConflict.
const (
	ConflictUser         = "user"
	ConflictPlan         = "plan"
	ConflictSubscription = "subscription"
)

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) RecordEvent(SourceFamily, Action, string) {}
func (NoopMetrics) RecordProcessingDuration(SourceFamily, time.Duration) {}
func (NoopMetrics) RecordUserCreated(SourceFamily) {}
func (NoopMetrics) RecordSubscriptionCreated(SourceFamily) {}
func (NoopMetrics) RecordSubscriptionsCancelled(SourceFamily, int64) {}
func (NoopMetrics) RecordConflict(string) {}
func (NoopMetrics) RecordReplay(string) {}
