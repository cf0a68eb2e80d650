package api

// Error is the body every non-2xx response carries.
type Error struct {
	Message     string `json:"message"`
	MessageCode string `json:"message_code"`
	RequestID   string `json:"request_id,omitempty"`
}
