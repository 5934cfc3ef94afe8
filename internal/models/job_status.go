package models

/*
Job status constants shared by the polling engine, the history store and the API.
Two vocabularies exist: the state of a slot in the client-side store, and the
status the server reports for a job.
*/

// Client-side store status
const (
	StoreStatusIdle      = "idle"
	StoreStatusLoading   = "loading"
	StoreStatusSucceeded = "succeeded"
	StoreStatusFailed    = "failed"
)

// Server-side job status
const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in-progress"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

// Task type constants
const (
	TaskTypeRunJob = "run_job"
)
