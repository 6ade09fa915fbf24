package teams

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

// errorEnvelope is the wire form of a failed tool call.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errResult maps a domain error to the { error: { kind, message } } envelope.
func errResult(err error) *mcp.CallToolResult {
	env := errorEnvelope{Error: errorBody{Kind: domain.Kind(err), Message: err.Error()}}
	data, merr := json.Marshal(env)
	if merr != nil {
		return mcp.NewToolResultError(fmt.Sprintf(`{"error":{"kind":"ErrStorage","message":%q}}`, err.Error()))
	}
	return mcp.NewToolResultError(string(data))
}

// jsonResult marshals v (camelCase keys via struct tags) as the tool result.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(fmt.Errorf("%w: encode result: %v", domain.ErrStorage, err))
	}
	return mcp.NewToolResultText(string(data))
}

// argString extracts a string argument; required arguments fail ErrInvalidArg.
func argString(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key].(string)
	if (!ok || v == "") && required {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidArg, key)
	}
	return v, nil
}

// argInt extracts a numeric argument (JSON numbers arrive as float64).
func argInt(args map[string]any, key string) (int, bool) {
	if v, ok := args[key].(float64); ok {
		return int(v), true
	}
	return 0, false
}

// argBool extracts a boolean argument with a default.
func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// argIntSlice extracts an array-of-ids argument. Returns nil when absent.
func argIntSlice(args map[string]any, key string) (*[]int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array of task ids", domain.ErrInvalidArg, key)
	}
	ids := make([]int, 0, len(arr))
	for _, x := range arr {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s must contain only task ids", domain.ErrInvalidArg, key)
		}
		ids = append(ids, int(f))
	}
	return &ids, nil
}
