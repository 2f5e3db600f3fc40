package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/4thel00z/medrag/internal"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func NewMCPCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve medical retrieval tools over MCP (stdio)",
		Long: `Run medrag as a Model Context Protocol server on stdio. The index is
built or loaded once at startup; the ask tool is only available when a chat
provider can be resolved.`,
		Example: `  # claude_desktop_config.json
  # {
  #   "mcpServers": {
  #     "medrag": {"command": "medrag", "args": ["mcp"]}
  #   }
  # }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			providerName, _ := cmd.Flags().GetString("provider")
			ctx := cmd.Context()

			eng, err := a.engines.Open(ctx, internal.OpenRequest{Scope: scopeHint})
			if err != nil {
				return err
			}
			defer eng.Close()

			h := &mcpHandlers{engine: eng}
			if provider, err := a.engines.Provider(ctx, eng.Config(), providerName); err != nil {
				a.logger.Warn("ask_medical_question disabled", "error", err)
			} else {
				h.answerer = internal.NewRAGAnswerer(eng.Retriever(), eng.Composer(), provider, eng.Config().Retrieval.K, a.logger)
			}

			server := mcpserver.NewMCPServer("medrag", version)
			registerTools(server, h)

			a.logger.Info("mcp server starting on stdio", "entries", eng.Corpus().Len())

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- mcpserver.ServeStdio(server)
			}()

			select {
			case <-ctx.Done():
				return nil
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("mcp server: %w", err)
				}
				return nil
			}
		},
	}

	cmd.Flags().String("provider", "", "Provider for ask_medical_question (default from config)")
	return cmd
}

type mcpHandlers struct {
	engine   *internal.Engine
	answerer *internal.RAGAnswerer
}

func registerTools(server *mcpserver.MCPServer, h *mcpHandlers) {
	server.AddTool(mcp.Tool{
		Name:        "retrieve_medical_knowledge",
		Description: "Find the medical Q&A pairs most similar to a query, closest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Question or symptom description",
				},
				"max_results": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results (default from config)",
				},
			},
			Required: []string{"query"},
		},
	}, h.RetrieveKnowledge)

	server.AddTool(mcp.Tool{
		Name:        "ask_medical_question",
		Description: "Answer a medical question using retrieved knowledge and the configured chat model.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The medical question",
				},
			},
			Required: []string{"query"},
		},
	}, h.AskQuestion)
}

func (h *mcpHandlers) RetrieveKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k := request.GetInt("max_results", 0)

	out, err := internal.RetrieveWith(ctx, h.engine, query, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieval failed: %v", err)), nil
	}
	return jsonResult(out)
}

func (h *mcpHandlers) AskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	if h.answerer == nil {
		return mcp.NewToolResultError("no chat provider configured"), nil
	}

	res, err := h.answerer.AnswerWithSources(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}
	return mcp.NewToolResultText(res.Answer), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
