// dispatch.Transport adapter over the MCP client.
//
// Capability names map one-to-one onto MCP tool names. Server failures are
// translated into structured dispatch errors so the dispatcher can decide
// retryability without knowing the wire protocol.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/tabula/dispatch"
	"github.com/richinex/tabula/model"
)

// Transport adapts a Client to the dispatcher's transport boundary.
type Transport struct {
	client *Client
}

var _ dispatch.Transport = (*Transport)(nil)

// NewTransport wraps an MCP client as a dispatch transport.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// Invoke calls the tool named by the capability and returns its payload.
func (t *Transport) Invoke(ctx context.Context, capability model.Capability, arguments map[string]any) (json.RawMessage, error) {
	result, err := t.client.CallTool(ctx, string(capability), arguments)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, &dispatch.RemoteError{
				Kind:    classifyCode(rpcErr.Code, rpcErr.Message),
				Code:    rpcErr.Code,
				Message: rpcErr.Message,
			}
		}
		return nil, err
	}
	return unwrapToolResult(result)
}

// toolResult is the MCP tools/call result envelope.
type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// unwrapToolResult extracts the payload from the MCP content envelope.
// Tool output arrives as text blocks; when the text is itself JSON it is
// passed through raw, otherwise it is wrapped as a JSON string.
func unwrapToolResult(result json.RawMessage) (json.RawMessage, error) {
	var envelope toolResult
	if err := json.Unmarshal(result, &envelope); err != nil || len(envelope.Content) == 0 {
		// Not an envelope; treat the result as the payload itself.
		return result, nil
	}

	text := envelope.Content[0].Text
	if envelope.IsError {
		return nil, &dispatch.RemoteError{
			Kind:    classifyCode(0, text),
			Message: text,
		}
	}

	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	wrapped, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap tool output: %w", err)
	}
	return wrapped, nil
}

// classifyCode maps a server error code (JSON-RPC or HTTP, plus message
// sniffing for envelope errors that carry no code) to an error kind.
func classifyCode(code int, message string) model.ErrorKind {
	switch code {
	case 429, -32001:
		return model.ErrKindRateLimit
	case 400, -32602:
		return model.ErrKindValidation
	case 401, 403:
		return model.ErrKindPermission
	case 404, -32601:
		return model.ErrKindNotFound
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return model.ErrKindRateLimit
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return model.ErrKindNotFound
	case strings.Contains(lower, "permission"), strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"):
		return model.ErrKindPermission
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "validation"):
		return model.ErrKindValidation
	}
	return model.ErrKindTransport
}
