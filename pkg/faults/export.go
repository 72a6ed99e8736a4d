package faults

import (
	"encoding/json"
)

// Export is the external-facing representation of a classified error.
// It carries what callers and dashboards need for programmatic handling
// and display; the wrapped cause chain stays internal.
type Export struct {
	Category    Category               `json:"category"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Recoverable bool                   `json:"recoverable"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Export returns the external representation of the error
func (e *ClassifiedError) Export() Export {
	return Export{
		Category:    e.Category,
		Code:        e.Code,
		Message:     e.Message,
		Recoverable: e.Recoverable,
		Context:     e.Context,
	}
}

// MarshalJSON serializes the export form, never the internal cause
func (e *ClassifiedError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Export())
}
