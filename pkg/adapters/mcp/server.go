// Package mcp exposes the conversation controller as Model Context Protocol
// tools so that an assistant can drive a talebot conversation.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// FlowsURI is the resource exposing the compiled flow definitions.
const FlowsURI = "talebot://flows"

// TurnHandler processes one inbound chat message.
type TurnHandler interface {
	HandleTurn(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) domain.Instruction
}

// Server wraps the controller and exposes it as an MCP server.
type Server struct {
	turns     TurnHandler
	flows     *flow.Table
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP server. flows may be nil, in which case the
// list_flows tool and the flows resource are not registered.
func NewServer(turns TurnHandler, flows *flow.Table, version string, opts ...Option) *Server {
	s := &Server{
		turns:     turns,
		flows:     flows,
		logger:    slog.New(slog.DiscardHandler),
		mcpServer: server.NewMCPServer("talebot-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	if flows != nil {
		s.registerResources()
	}
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop MCP server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	turnTool := mcp.NewTool("handle_turn",
		mcp.WithDescription("Send one chat message for a session and get the bot's reply. "+
			"Pass flow to start a flow when the session has none in progress."),
		mcp.WithString("session_key", mcp.Required(), mcp.Description("Stable identifier of the chat (e.g. the user's chat id)")),
		mcp.WithString("flow", mcp.Description("Flow to start if none is active: profile_creation, story_request, profile_edit or story_feedback")),
		mcp.WithString("text", mcp.Description("The user's message")),
		mcp.WithOutputSchema[domain.Instruction](),
	)
	s.mcpServer.AddTool(turnTool, mcp.NewStructuredToolHandler(s.handleTurn))

	if s.flows == nil {
		return
	}
	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List the available conversation flows and their steps."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(s.flows.Definitions())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode flows: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Instruction, error) {
	key, _ := args["session_key"].(string)
	if key == "" {
		return domain.Instruction{}, errors.New("session_key is required")
	}
	kind, _ := args["flow"].(string)
	flowKind := domain.FlowKind(kind)
	if flowKind != "" && !flowKind.Valid() {
		return domain.Instruction{}, fmt.Errorf("unknown flow %q", kind)
	}
	text, _ := args["text"].(string)

	inst := s.turns.HandleTurn(ctx, key, flowKind, text)
	s.logger.Debug("MCP turn handled", "kind", inst.Kind, "flow", inst.Flow, "step", inst.Step)
	return inst, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(FlowsURI, "Conversation flows",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.flows.Definitions())
		if err != nil {
			return nil, fmt.Errorf("encode flows: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      FlowsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
