package models

// IndexInfoConfigName is the config key IndexInfo is stored under
const IndexInfoConfigName = "index_info"

// IndexInfo identifies the index the pipeline submits to and queries
type IndexInfo struct {
	IndexID string `json:"index_id"`
}

// TaskState is the remote state of an ingest task
type TaskState string

const (
	TaskPending  TaskState = "PENDING"
	TaskProgress TaskState = "PROGRESS"
	TaskSuccess  TaskState = "SUCCESS"
	TaskFailed   TaskState = "FAILED"
)

// Terminal reports whether no further state change is expected
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailed
}

// Task is an asynchronous ingest task as reported by the search service
type Task struct {
	TaskID           string    `json:"task_id"`
	State            TaskState `json:"state"`
	StateDescription string    `json:"state_description,omitempty"`
	IndexID          string    `json:"index_id,omitempty"`
}
