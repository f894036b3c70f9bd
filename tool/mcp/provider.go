// Package mcp exposes tools served by Model Context Protocol servers through
// the tool registry.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetpotato0/studybuddy/config"
	"github.com/sweetpotato0/studybuddy/tool"
)

// Provider implements tool.Provider for one MCP server.
type Provider struct {
	client *Client
	prefix string
}

var _ tool.Provider = (*Provider)(nil)

// NewProvider connects to the server described by cfg. A URL selects the
// streamable HTTP transport; otherwise Command is launched over stdio. When
// cfg.Name is set, remote tool names are prefixed with it.
func NewProvider(ctx context.Context, cfg config.MCPServerConfig, opts ...Option) (*Provider, error) {
	var (
		client *Client
		err    error
	)
	switch {
	case strings.TrimSpace(cfg.URL) != "":
		client, err = NewStreamableClient(ctx, cfg.URL, opts...)
	case strings.TrimSpace(cfg.Command) != "":
		client, err = NewStdioClient(ctx, cfg.Command, append([]Option{WithCommandArgs(cfg.Args...)}, opts...)...)
	default:
		return nil, errors.New("mcp: either url or command is required")
	}
	if err != nil {
		return nil, err
	}

	p := &Provider{client: client, prefix: cfg.Name}
	// Fail fast if the tool list cannot be read.
	if _, err := p.Tools(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mcp: list tools from %q: %w", cfg.Name, err)
	}
	return p, nil
}

// Tools lists the server's tools.
func (p *Provider) Tools(ctx context.Context) ([]*tool.Tool, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("mcp: provider is not initialized")
	}
	return p.client.BuildTools(ctx, p.prefix)
}

// Close closes the underlying client.
func (p *Provider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// ToolsChanged fires when the server's tool list changes.
func (p *Provider) ToolsChanged() <-chan struct{} {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.ToolsChanged()
}
