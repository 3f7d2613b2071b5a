package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobSubmitted = "job.submitted"
	ActionJobStarted   = "job.started"
	ActionJobCompleted = "job.completed"
	ActionJobRetrying  = "job.retrying"
	ActionJobFailed    = "job.failed"
	ActionJobCancelled = "job.cancelled"
	ActionJobCollected = "job.collected"
)

// CategoryJob groups every job action.
const CategoryJob = "cadence.job"

// ResourceJob is the Resource field of every job audit event.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobSubmitted,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobFailed,
		ActionJobCancelled,
		ActionJobCollected,
	}
}
