// Package mcpremote exposes the radio as Model Context Protocol tools, so an
// assistant can browse stations and control playback.
package mcpremote

import (
	"context"
	"encoding/json"

	"github.com/germanamz/piradio/pkg/logger"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Server serves radio tools over MCP.
type Server struct {
	server *mcp.Server
	log    zerolog.Logger
}

// New creates a Server exposing Tools(ctrl).
func New(name, version string, ctrl Controller, log *zerolog.Logger) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		log:    logger.Component(logger.OrNop(log), "mcp"),
	}
	s.Register(Tools(ctrl)...)

	return s
}

// Register adds tools to the server.
func (s *Server) Register(tools ...Tool) {
	for _, t := range tools {
		s.server.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}, s.handler(t))
	}
}

// Run serves requests on transport until ctx is cancelled or the client
// disconnects. The binary passes &mcp.StdioTransport{}; tests use in-memory
// transports.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.log.Debug().Msg("serving")
	return s.server.Run(ctx, transport)
}

// handler adapts a Tool. Tool failures are reported in the result, not as
// protocol errors.
func (s *Server) handler(t Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}

		result, err := t.Handler(ctx, args)
		if err != nil {
			s.log.Warn().Err(err).Str("tool", t.Name).Msg("tool failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		s.log.Debug().Str("tool", t.Name).Msg("tool called")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}
