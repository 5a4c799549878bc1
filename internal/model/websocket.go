package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports clips discovered so far for a task
type WSProgressMessage struct {
	Type           string     `json:"type"`
	TaskID         string     `json:"taskId"`
	Status         TaskStatus `json:"status"`
	CompletedClips int        `json:"completedClips"`
	TotalExpected  int        `json:"totalExpected"`
}

// WSCompleteMessage reports a terminal task with its clips
type WSCompleteMessage struct {
	Type       string     `json:"type"`
	TaskID     string     `json:"taskId"`
	Status     TaskStatus `json:"status"`
	AudioClips []Clip     `json:"audioClips"`
}

// WSErrorMessage reports a task failure
type WSErrorMessage struct {
	Type   string  `json:"type"`
	TaskID string  `json:"taskId"`
	Error  WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
