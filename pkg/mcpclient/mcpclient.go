// Package mcpclient drives an a2ui MCP server with typed calls. Hosts written
// in Go use it instead of assembling tool arguments by hand.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/a2ui/pkg/mcpserver"
)

// ToolError is a tool call that the server answered with an error result.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string { return fmt.Sprintf("mcp tool %s: %s", e.Tool, e.Message) }

// Client is a connected MCP session.
type Client struct {
	session *mcp.ClientSession
}

// Connect opens a session over t.
func Connect(ctx context.Context, t mcp.Transport) (*Client, error) {
	c := mcp.NewClient(&mcp.Implementation{Name: "a2ui-mcpclient", Version: "v1"}, nil)
	cs, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect: %w", err)
	}
	return &Client{session: cs}, nil
}

// Launch starts cmd, typically `a2ui mcp --user ID`, and talks to it over its
// stdio.
func Launch(ctx context.Context, cmd *exec.Cmd) (*Client, error) {
	return Connect(ctx, &mcp.CommandTransport{Command: cmd})
}

// Tools lists the server's tool names.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, t.Name)
	}
	return out, nil
}

// Init calls booking_init.
func (c *Client) Init(ctx context.Context, in mcpserver.InitInput) (mcpserver.StepOutput, error) {
	var out mcpserver.StepOutput
	return out, c.call(ctx, "booking_init", in, &out)
}

// Act calls booking_action.
func (c *Client) Act(ctx context.Context, surfaceID, actionID string, payload map[string]any) (mcpserver.StepOutput, error) {
	var out mcpserver.StepOutput
	in := mcpserver.ActionInput{SurfaceID: surfaceID, ActionID: actionID, Payload: payload}
	return out, c.call(ctx, "booking_action", in, &out)
}

// Surfaces calls list_surfaces.
func (c *Client) Surfaces(ctx context.Context, agentID string) ([]mcpserver.SurfaceSummary, error) {
	var out mcpserver.ListOutput
	if err := c.call(ctx, "list_surfaces", mcpserver.ListInput{AgentID: agentID}, &out); err != nil {
		return nil, err
	}
	return out.Surfaces, nil
}

func (c *Client) call(ctx context.Context, tool string, in, out any) error {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: in})
	if err != nil {
		return fmt.Errorf("mcp call %s: %w", tool, err)
	}
	if res.IsError {
		return &ToolError{Tool: tool, Message: text(res)}
	}
	if res.StructuredContent == nil {
		return fmt.Errorf("mcp call %s: no structured content", tool)
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("mcp call %s: decode: %w", tool, err)
	}
	return nil
}

func text(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "; ")
}

// Close ends the session.
func (c *Client) Close() error { return c.session.Close() }

// IsToolError reports whether err is a tool error result.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}
