// Package mcp registers the tools of Model Context Protocol servers as
// relay capabilities.
//
// Each configured server is a capability.Source. Registration connects to
// the server, lists its tools once and maps every tool onto a capability
// whose handler forwards the call over the session. The catalog is fixed
// at registration; tools the server adds later are not picked up.
package mcp
