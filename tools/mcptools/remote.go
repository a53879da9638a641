package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rtrompier/agentai/pkg/llmutils"
	"github.com/rtrompier/agentai/tools"
)

// remoteTool forwards calls to a tool hosted on an MCP server.
type remoteTool[C any] struct {
	client      *mcpclient.Client
	name        string
	registered  string
	description string
	params      map[string]any
	callTimeout time.Duration
}

var _ tools.Tool[any] = (*remoteTool[any])(nil)

func newRemoteTool[C any](cli *mcpclient.Client, mcpTool mcp.Tool, cfg *config) *remoteTool[C] {
	registered := mcpTool.Name
	if cfg.prefix != "" {
		registered = cfg.prefix + "__" + mcpTool.Name
	}
	return &remoteTool[C]{
		client:      cli,
		name:        mcpTool.Name,
		registered:  registered,
		description: mcpTool.Description,
		params:      schemaToMap(mcpTool.InputSchema),
		callTimeout: cfg.callTimeout,
	}
}

func (t *remoteTool[C]) Name() string {
	return t.registered
}

func (t *remoteTool[C]) Description() string {
	return t.description
}

func (t *remoteTool[C]) Parameters() any {
	return t.params
}

// Call forwards the tool call over the session under the original MCP name.
// The application context tc never crosses the wire.
func (t *remoteTool[C]) Call(ctx context.Context, tc C, input string) (string, error) {
	var args map[string]any
	if input != "" {
		if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &args); err != nil {
			return "", errors.Mark(errors.WithStack(tools.ErrFailedUnmarshalInput), tools.ErrExecution)
		}
	}

	callCtx := ctx
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	res, err := t.client.CallTool(callCtx, req)
	if err != nil {
		return "", errors.Mark(
			errors.Wrapf(err, "MCP tool %s failed", t.registered),
			tools.ErrExecution)
	}

	text := textContent(res)
	if res.IsError {
		return "", errors.Mark(
			errors.Newf("MCP tool %s failed: %s", t.registered, text),
			tools.ErrExecution)
	}
	return text, nil
}

// schemaToMap converts the advertised input schema to the JSON schema shaped
// map served by Parameters.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	m := map[string]any{
		"type": schema.Type,
	}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// textContent joins all text parts of a result. Non-text parts are noted,
// not dropped.
func textContent(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
