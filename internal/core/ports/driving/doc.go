// Package driving declares what the CLI and the MCP server may ask of recall.
// internal/core/services provides the implementations.
package driving
