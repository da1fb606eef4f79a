// Package mcpserver exposes the pipeline as an MCP tool.
package mcpserver

import (
	"context"
	"errors"

	charmlog "github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
)

// ToolName is the name agents call.
const ToolName = "answer_query"

// #region types

// Pipeline answers one query.
type Pipeline interface {
	Handle(ctx context.Context, query string) *orchestrator.RequestState
}

// AnswerInput is the answer_query argument object.
type AnswerInput struct {
	Query string `json:"query" jsonschema:"the question to answer from the indexed documents, model knowledge or the web"`
}

// AnswerOutput is the answer_query result object.
type AnswerOutput struct {
	Answer    string                  `json:"answer"`
	Source    string                  `json:"source"`
	Citations []orchestrator.Citation `json:"citations"`
	Grounded  bool                    `json:"grounded"`
	RequestID string                  `json:"request_id,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// #endregion types

// #region server

// New builds an MCP server with the answer_query tool registered.
func New(p Pipeline, version string, log *charmlog.Logger) (*mcp.Server, error) {
	if p == nil {
		return nil, errors.New("mcpserver: pipeline is required")
	}
	log = logger.Component(log, "mcp")
	srv := mcp.NewServer(&mcp.Implementation{Name: "agentic-rag", Version: version}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolName,
		Description: "Answer a question using uploaded documents, falling back to model knowledge; current events go to web search. Returns the answer, its source and citations.",
	}, answerHandler(p, log))
	return srv, nil
}

func answerHandler(p Pipeline, log *charmlog.Logger) mcp.ToolHandlerFor[AnswerInput, AnswerOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in AnswerInput) (*mcp.CallToolResult, AnswerOutput, error) {
		st := p.Handle(ctx, in.Query)
		out := AnswerOutput{
			Answer:    st.AnswerText,
			Source:    string(st.AnswerSource),
			Citations: st.Citations,
			Grounded:  st.IsGrounded,
			RequestID: st.RequestID,
			Error:     st.Error,
		}
		if !st.Valid {
			out.Error = st.RejectionReason
		}
		if out.Citations == nil {
			out.Citations = []orchestrator.Citation{}
		}
		log.Debug("answered", "request_id", st.RequestID, "source", out.Source)
		return nil, out, nil
	}
}

// ServeStdio runs srv on stdin/stdout until ctx ends or the client disconnects.
func ServeStdio(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}

// #endregion server
