package models

import "time"

// These structs define the JSON payloads exchanged with the triggers and the
// downstream workflow.

// RunSummary is the aggregate outcome of a single daemon run.
type RunSummary struct {
	RunID            string     `json:"runId"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       time.Time  `json:"finishedAt"`
	Tenants          int        `json:"tenants"`
	TargetsProcessed int        `json:"targetsProcessed"`
	TargetsSkipped   int        `json:"targetsSkipped"`
	TargetsFailed    int        `json:"targetsFailed"`
	FilesTagged      int        `json:"filesTagged"`
	FilesSkipped     int        `json:"filesSkipped"`
	FilesFailed      int        `json:"filesFailed"`
	Errors           []RunError `json:"errors,omitempty"`
}

// RunError records one failure caught during a run, at the scope it was caught.
type RunError struct {
	TenantID string `json:"tenantId"`
	Target   string `json:"target,omitempty"`
	File     string `json:"file,omitempty"`
	Message  string `json:"message"`
}

// RunDaemonResponse is the output of the on-demand HTTP trigger.
type RunDaemonResponse struct {
	Status  string     `json:"status"`
	Summary RunSummary `json:"summary"`
}

// SchedulerMessage is the Pub/Sub payload carried by the scheduled CloudEvent.
type SchedulerMessage struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
}
