// Package toolset connects agents to remote tools exposed over the Model
// Context Protocol.
//
// A Toolset wraps an MCP client: Connect performs the protocol handshake,
// Load discovers the remote tools and returns each one proxied as a
// tool.Tool. Remote call failures never escape the tool boundary; they are
// converted into structured error results the model can phrase a reply
// around. The login agent uses this for its user and session bookkeeping
// tools.
package toolset
