package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the error details visible to the
// caller instead of being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors the caller can fix
// (e.g., invalid parameters, unknown model, point not found).
//
// Do NOT use this for system failures (store connection errors,
// upstream outages) - those should still return Go errors.
//
// Example:
//
//	if point == nil {
//	    return NewErrorResult("point_not_found", "no point with id ..."), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "sync_failed",
//	    "primary sync of sale.order failed",
//	    cascadeResult,
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// inputErrorPatterns are substrings that indicate an error is due to user input
// rather than a server failure.
var inputErrorPatterns = []string{
	"not found",
	"invalid argument",
	"unknown model",
	"missing component",
	"cannot be empty",
}

// IsInputError returns true if the error was caused by the caller's input
// rather than a server failure. Input errors are logged at DEBUG level.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrInvalidArgument) ||
		errors.Is(err, apperrors.ErrUnknownModel) ||
		errors.Is(err, apperrors.ErrNotFound) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range inputErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// InputErrorCode maps an input error to a result code.
func InputErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "invalid_parameters"
	}
}
