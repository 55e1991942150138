package source

import (
	"fmt"
	"strings"
)

// Odoo error categories.
const (
	ErrorTypeConfiguration  = "configuration"
	ErrorTypeSecurity       = "security"
	ErrorTypeAuthentication = "authentication"
	ErrorTypeConnection     = "connection"
	ErrorTypeHTTP           = "http"
	ErrorTypeResponse       = "response"
	ErrorTypeAPI            = "api_error"
)

// OdooError is a failed Odoo call with hints for the operator.
type OdooError struct {
	Type        string
	Message     string
	Diagnostics []string
	StatusCode  int
	Err         error
}

func (e *OdooError) Error() string {
	return fmt.Sprintf("odoo %s: %s", e.Type, e.Message)
}

func (e *OdooError) Unwrap() error {
	return e.Err
}

// IsRetryable marks connection failures and gateway/throttling responses as
// transient. Server-side faults, auth and validation errors are permanent.
func (e *OdooError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeConnection:
		return true
	case ErrorTypeHTTP:
		switch e.StatusCode {
		case 429, 502, 503, 504:
			return true
		}
	}
	return false
}

// Detail renders the message followed by the diagnostics, one per line.
func (e *OdooError) Detail() string {
	if len(e.Diagnostics) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Diagnostics, "\n")
}
