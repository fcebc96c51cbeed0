// Package mcp exposes water-quality assessment as Model Context Protocol
// tools.
package mcp

import (
	"context"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
	"github.com/water-quality-server/internal/service"
)

// Assessor is the part of the assessment service the tools call.
type Assessor interface {
	Assess(ctx context.Context, sample *domain.Sample) (*domain.AssessmentReport, error)
	GetAssessment(ctx context.Context, id int64) (*domain.AssessmentReport, error)
	Recommend(readings []domain.Reading) *service.Assembly
}

// Server wraps the MCP SDK server with the assessment tools registered.
type Server struct {
	MCPServer *sdkmcp.Server

	assessor Assessor
	table    *guideline.Table
	logger   *logrus.Logger
}

// NewServer creates an MCP server named per cfg.
func NewServer(cfg domain.MCPConfig, assessor Assessor, table *guideline.Table, logger *logrus.Logger) *Server {
	name, version := cfg.ServerName, cfg.ServerVersion
	if name == "" {
		name = "water-quality-mcp"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: name, Version: version}, nil),
		assessor:  assessor,
		table:     table,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name: "assess_water_sample",
		Description: "Assess a water sample: predict potability, store the measurement and, when not potable, " +
			"return a prioritized remediation plan. Parameter names accept dataset aliases such as D.O and B.O.D.",
	}, s.handleAssess)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "recommend_remediation",
		Description: "Build a remediation plan for a set of readings without predicting or storing anything.",
	}, s.handleRecommend)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_assessment",
		Description: "Fetch a stored assessment by measurement ID.",
	}, s.handleGetAssessment)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "lookup_guideline",
		Description: "Return the acceptable range, severity tiers and remediation measures for a parameter.",
	}, s.handleLookupGuideline)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
