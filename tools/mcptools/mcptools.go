// Package mcptools exposes tools hosted on MCP servers as agent tools. A
// ToolSet wraps one MCP session: the session is initialized once, the
// advertised tools are discovered at connect time and every call is forwarded
// over the session.
package mcptools

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rtrompier/agentai/tools"
)

var logger = xlog.NewPackageLogger("github.com/rtrompier/agentai", "mcptools")

// DefaultCallTimeout bounds a single forwarded tool call.
const DefaultCallTimeout = 60 * time.Second

// Option configures a ToolSet.
type Option func(*config)

type config struct {
	allowed       map[string]bool
	prefix        string
	callTimeout   time.Duration
	clientName    string
	clientVersion string
}

// WithAllowedTools keeps only the named tools from the server's catalog,
// names are the original MCP tool names.
func WithAllowedTools(names ...string) Option {
	return func(c *config) {
		c.allowed = make(map[string]bool, len(names))
		for _, name := range names {
			c.allowed[name] = true
		}
	}
}

// WithPrefix registers the discovered tools as {prefix}__{name}, useful when
// tools from several servers share an agent.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithCallTimeout bounds a single forwarded tool call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		c.callTimeout = d
	}
}

// WithClientInfo sets the client name and version sent in the MCP handshake.
func WithClientInfo(name, version string) Option {
	return func(c *config) {
		c.clientName = name
		c.clientVersion = version
	}
}

// ToolSet holds the tools discovered from one MCP session.
type ToolSet[C any] struct {
	client    *mcpclient.Client
	tools     []tools.Tool[C]
	ownClient bool
}

// NewStdio spawns an MCP server as a child process and connects to it over
// stdio. env entries are KEY=VALUE pairs added to the child environment.
func NewStdio[C any](ctx context.Context, command string, env []string, args []string, opts ...Option) (*ToolSet[C], error) {
	cli, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start MCP server: %s", command)
	}
	ts, err := connect[C](ctx, cli, true, opts...)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return ts, nil
}

// NewStreamableHTTP connects to an MCP server over streamable HTTP.
func NewStreamableHTTP[C any](ctx context.Context, baseURL string, opts ...Option) (*ToolSet[C], error) {
	cli, err := mcpclient.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create MCP client: %s", baseURL)
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, errors.Wrapf(err, "failed to connect to MCP server: %s", baseURL)
	}
	ts, err := connect[C](ctx, cli, true, opts...)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return ts, nil
}

// NewFromClient discovers tools over a caller-managed session. The client
// must be started, Close on the returned ToolSet does not close it.
func NewFromClient[C any](ctx context.Context, cli *mcpclient.Client, opts ...Option) (*ToolSet[C], error) {
	return connect[C](ctx, cli, false, opts...)
}

func connect[C any](ctx context.Context, cli *mcpclient.Client, ownClient bool, opts ...Option) (*ToolSet[C], error) {
	cfg := &config{
		callTimeout:   DefaultCallTimeout,
		clientName:    "agentai",
		clientVersion: "1.0.0",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    cfg.clientName,
		Version: cfg.clientVersion,
	}
	res, err := cli.Initialize(ctx, initReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize MCP session")
	}

	ts := &ToolSet[C]{
		client:    cli,
		ownClient: ownClient,
	}

	var cursor mcp.Cursor
	for {
		listReq := mcp.ListToolsRequest{}
		listReq.Params.Cursor = cursor
		list, err := cli.ListTools(ctx, listReq)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list MCP tools")
		}
		for _, mcpTool := range list.Tools {
			if cfg.allowed != nil && !cfg.allowed[mcpTool.Name] {
				continue
			}
			ts.tools = append(ts.tools, newRemoteTool[C](cli, mcpTool, cfg))
		}
		if list.NextCursor == "" {
			break
		}
		cursor = list.NextCursor
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "mcp_connected",
		"server", res.ServerInfo.Name,
		"tools", len(ts.tools),
	)
	return ts, nil
}

// Tools returns the discovered tools in catalog order.
func (ts *ToolSet[C]) Tools() []tools.Tool[C] {
	list := make([]tools.Tool[C], len(ts.tools))
	copy(list, ts.tools)
	return list
}

// Close shuts down the session. Sessions passed in with NewFromClient are
// left to their owner.
func (ts *ToolSet[C]) Close() error {
	if !ts.ownClient {
		return nil
	}
	return ts.client.Close()
}
