package model

// WebSocket message types
type WSMessageType string

const (
	WSMessageTypeProgress WSMessageType = "progress"
	WSMessageTypeComplete WSMessageType = "complete"
	WSMessageTypeError    WSMessageType = "error"
	WSMessageTypePing     WSMessageType = "ping"
	WSMessageTypePong     WSMessageType = "pong"
)

// WSMessage is the base WebSocket message
type WSMessage struct {
	Type WSMessageType `json:"type"`
}

// WSProgressMessage reports job lifecycle progress
type WSProgressMessage struct {
	Type        WSMessageType `json:"type"`
	JobID       string        `json:"jobId"`
	Status      JobStatus     `json:"status"`
	SlotsFilled int           `json:"slotsFilled"`
	Step        string        `json:"step,omitempty"`
}

// WSCompleteMessage reports job completion
type WSCompleteMessage struct {
	Type   WSMessageType `json:"type"`
	JobID  string        `json:"jobId"`
	Result interface{}   `json:"result"`
}

// WSError carries an error code and message
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSErrorMessage reports a job failure
type WSErrorMessage struct {
	Type  WSMessageType `json:"type"`
	JobID string        `json:"jobId"`
	Error WSError       `json:"error"`
}
