// Package tools provides MCP tool implementations for the fkgraph server.
package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// getOptionalInt extracts an optional whole-number argument. JSON numbers
// arrive as float64; fractional values are rejected.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool, error) {
	val, ok := getOptionalFloat(req, key)
	if !ok {
		return 0, false, nil
	}
	if val != math.Trunc(val) || math.IsInf(val, 0) {
		return 0, true, fmt.Errorf("parameter '%s' must be a whole number", key)
	}
	return int(val), true, nil
}

// getOptionalArray extracts an optional array argument from the request.
func getOptionalArray(req mcp.CallToolRequest, key string) ([]any, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, false
	}
	val, ok := args[key].([]any)
	return val, ok
}

// getOptionalObject extracts an optional object argument from the request.
func getOptionalObject(req mcp.CallToolRequest, key string) (map[string]any, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, false
	}
	val, ok := args[key].(map[string]any)
	return val, ok
}

// getStringSlice extracts an optional array of strings; non-string items are skipped.
func getStringSlice(req mcp.CallToolRequest, key string) []string {
	items, ok := getOptionalArray(req, key)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && trimString(s) != "" {
			out = append(out, trimString(s))
		}
	}
	return out
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
