package ws

import "time"

// EventType classifies hub broadcasts.
type EventType string

const (
	EventTypeTaskStarted   EventType = "task_started"
	EventTypePageProgress  EventType = "page_progress"
	EventTypeTaskCompleted EventType = "task_completed"
	EventTypeTaskFailed    EventType = "task_failed"
	EventTypeConnection    EventType = "connection"
)

// Event is the envelope pushed to connected clients.
type Event struct {
	Type      EventType   `json:"type"`
	TaskID    string      `json:"task_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ProgressEvent reports per-page progress of a multi-page document.
type ProgressEvent struct {
	FileName  string `json:"file_name"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// CompletionEvent summarizes a finished task.
type CompletionEvent struct {
	FileName    string `json:"file_name"`
	Status      string `json:"status"`
	Detected    int    `json:"detected"`
	Masked      int    `json:"masked"`
	FailedPages []int  `json:"failed_pages,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ClientMessage is what clients may send upward (subscriptions, pings).
type ClientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}
