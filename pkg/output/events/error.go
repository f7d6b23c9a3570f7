package events

// ErrorEvent is emitted when an error occurs outside a probe or scenario
// result, such as a failed preflight or a hook that could not deliver.
type ErrorEvent struct {
	BaseEvent
	Component string `json:"component"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Fatal     bool   `json:"fatal"`
}
