package models

// BatchOutcome records what happened to one submitted batch file
type BatchOutcome struct {
	File   string `json:"file"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the batch was accepted
func (o BatchOutcome) OK() bool {
	return o.Error == "" && o.TaskID != ""
}

// WatchStatus is the final classification of a watched task
type WatchStatus string

const (
	WatchSucceeded WatchStatus = "succeeded"
	WatchFailed    WatchStatus = "failed"
	WatchTimedOut  WatchStatus = "timed_out"
	WatchErrored   WatchStatus = "errored"
)

// WatchOutcome is the result of polling one task
type WatchOutcome struct {
	TaskID string      `json:"task_id"`
	Status WatchStatus `json:"status"`
	Polls  int         `json:"polls"`
	State  TaskState   `json:"state,omitempty"`
	Error  string      `json:"error,omitempty"`
}
