package toolset

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/tool"
)

const defaultCallTimeout = 15 * time.Second

// mcpClient is the slice of the MCP client surface the toolset needs. The
// indirection keeps the proxy logic testable without a live server.
type mcpClient interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Options configures a Toolset.
type Options struct {
	// CallTimeout bounds each remote tool call.
	CallTimeout time.Duration
	// ClientName and ClientVersion identify this client in the handshake.
	ClientName    string
	ClientVersion string
	// Logger receives connection and call logs.
	Logger logging.Logger
}

// Toolset proxies the tools of one remote MCP endpoint.
type Toolset struct {
	endpoint      string
	callTimeout   time.Duration
	clientName    string
	clientVersion string
	logger        logging.Logger

	transport *client.Client
	rpc       mcpClient
}

// New creates a Toolset for the given streamable HTTP endpoint. Call
// Connect before Load.
func New(endpoint string, optFns ...func(o *Options)) *Toolset {
	opts := Options{
		CallTimeout:   defaultCallTimeout,
		ClientName:    "refresh",
		ClientVersion: "1.0.0",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Toolset{
		endpoint:      endpoint,
		callTimeout:   opts.CallTimeout,
		clientName:    opts.ClientName,
		clientVersion: opts.ClientVersion,
		logger:        opts.Logger,
	}
}

// Connect establishes the transport and performs the MCP handshake.
func (ts *Toolset) Connect(ctx context.Context) error {
	c, err := client.NewStreamableHttpClient(ts.endpoint)
	if err != nil {
		return fmt.Errorf("failed to create MCP client for %s: %w", ts.endpoint, err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: ts.clientName, Version: ts.clientVersion}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("MCP handshake with %s failed: %w", ts.endpoint, err)
	}

	ts.transport = c
	ts.rpc = c
	ts.logger.Info("toolset.connected", "endpoint", ts.endpoint)
	return nil
}

// Load discovers the remote tools and returns a proxy for each. Connect
// must have succeeded first.
func (ts *Toolset) Load(ctx context.Context) ([]tool.Tool, error) {
	if ts.rpc == nil {
		return nil, fmt.Errorf("toolset not connected")
	}

	res, err := ts.rpc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote tools: %w", err)
	}

	tools := make([]tool.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, &remoteTool{
			name:        t.Name,
			description: t.Description,
			schema:      inputSchemaToMap(t.InputSchema),
			rpc:         ts.rpc,
			callTimeout: ts.callTimeout,
			logger:      ts.logger,
		})
	}

	ts.logger.Info("toolset.loaded", "endpoint", ts.endpoint, "tool_count", len(tools))
	return tools, nil
}

// Close tears down the transport.
func (ts *Toolset) Close() error {
	if ts.transport == nil {
		return nil
	}
	return ts.transport.Close()
}

func inputSchemaToMap(schema mcp.ToolInputSchema) map[string]any {
	out := map[string]any{"type": "object"}
	if schema.Type != "" {
		out["type"] = schema.Type
	}
	if len(schema.Properties) > 0 {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}
