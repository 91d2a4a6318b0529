package model

// ActionResponse is the output payload of a workflow action.
type ActionResponse struct {
	Status string        `json:"status"` // "ok" | "error"
	Action Action        `json:"action"`
	Order  *Order        `json:"order,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// BusinessRequest selects the active business context.
type BusinessRequest struct {
	BusinessID string `json:"business_id" validate:"required,max=128"`
}

// ErrorPayload describes an error response.
type ErrorPayload struct {
	Kind    string `json:"kind"`              // "invalid_transition", "timeout"
	Message string `json:"message,omitempty"` // human-readable, safe to show staff
}
