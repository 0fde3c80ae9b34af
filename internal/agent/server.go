package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"hifibridge/pkg/logging"
)

// ServerConfig configures the MCP endpoint.
type ServerConfig struct {
	Listen  string
	BaseURL string
	Version string
}

// Server serves Tools over SSE.
type Server struct {
	config ServerConfig
	tools  *Tools

	mu        sync.Mutex
	mcp       *server.MCPServer
	sseServer *server.SSEServer
}

// NewServer creates an MCP server for tools.
func NewServer(config ServerConfig, tools *Tools) *Server {
	if config.Listen == "" {
		config.Listen = ":8089"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.BaseURL == "" {
		host := config.Listen
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		config.BaseURL = "http://" + host
	}
	return &Server{config: config, tools: tools}
}

// MCPServer builds (once) and returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked()
}

func (s *Server) buildLocked() *server.MCPServer {
	if s.mcp == nil {
		s.mcp = server.NewMCPServer(
			"hifibridge",
			s.config.Version,
			server.WithToolCapabilities(true),
		)
		s.mcp.AddTools(s.tools.ServerTools()...)
	}
	return s.mcp
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.sseServer != nil {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already started")
	}
	s.sseServer = server.NewSSEServer(
		s.buildLocked(),
		server.WithBaseURL(s.config.BaseURL),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)
	sseServer := s.sseServer
	s.mu.Unlock()

	logging.Info("MCP", "Starting MCP tool server on %s", s.config.Listen)
	go func() {
		if err := sseServer.Start(s.config.Listen); err != nil && err != http.ErrServerClosed {
			logging.Error("MCP", err, "SSE server error")
		}
	}()
	return nil
}

// Stop shuts the SSE server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sseServer := s.sseServer
	s.sseServer = nil
	s.mu.Unlock()
	if sseServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logging.Info("MCP", "Stopping MCP tool server")
	return sseServer.Shutdown(shutdownCtx)
}
