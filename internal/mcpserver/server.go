// Package mcpserver exposes saved sensor records as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/db"
	"github.com/jwulff/sensorlog/internal/export"
	"github.com/jwulff/sensorlog/internal/recorder"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "sensorlog"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Server hosts the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	store     *db.Store
	rec       *recorder.Recorder
	exportDir string
	log       *zap.Logger
}

// RecordSummary is one saved record without its samples.
type RecordSummary struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Notes     string   `json:"notes"`
	CreatedAt string   `json:"created_at"`
	CreatedMs int64    `json:"created_ms"`
	Sensors   []string `json:"sensors"`
}

// ComponentCount is the number of points recorded for one component.
type ComponentCount struct {
	Sensor    string `json:"sensor"`
	Component string `json:"component"`
	Points    int    `json:"points"`
}

// RecordDetail is a record with its per-component point counts.
type RecordDetail struct {
	RecordSummary
	Components []ComponentCount `json:"components"`
}

// ListResult is the output of list_records.
type ListResult struct {
	Records []RecordSummary `json:"records"`
}

// ExportResult lists the CSV files written by export_record.
type ExportResult struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

// DeleteResult is the output of delete_record.
type DeleteResult struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// IDInput selects one record.
type IDInput struct {
	ID int64 `json:"id"`
}

// ExportInput selects a record and an optional output directory.
type ExportInput struct {
	ID  int64  `json:"id"`
	Dir string `json:"dir"`
}

// RenameInput carries a new title and, optionally, new notes.
type RenameInput struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Notes *string `json:"notes"`
}

// New creates an MCP server over the record store. Exports go to
// exportDir unless a call names another directory.
func New(store *db.Store, rec *recorder.Recorder, exportDir string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s := &Server{
		mcpServer: mcpServer,
		store:     store,
		rec:       rec,
		exportDir: exportDir,
		log:       log,
	}

	mcpServer.AddTool(listRecordsTool(), s.listRecordsHandler)
	mcpServer.AddTool(getRecordTool(), s.getRecordHandler)
	mcpServer.AddTool(exportRecordTool(), s.exportRecordHandler)
	mcpServer.AddTool(renameRecordTool(), s.renameRecordHandler)
	mcpServer.AddTool(deleteRecordTool(), s.deleteRecordHandler)
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func listRecordsTool() mcp.Tool {
	return mcp.NewTool(
		"list_records",
		mcp.WithDescription("Lists saved sensor recordings, newest first"),
	)
}

func idOption() mcp.ToolOption {
	return mcp.WithNumber("id",
		mcp.Required(),
		mcp.Description("Record id as shown by list_records"),
		mcp.Min(1),
	)
}

func getRecordTool() mcp.Tool {
	return mcp.NewTool(
		"get_record",
		mcp.WithDescription("Shows one recording with the number of points per sensor component"),
		idOption(),
	)
}

func exportRecordTool() mcp.Tool {
	return mcp.NewTool(
		"export_record",
		mcp.WithDescription("Writes one CSV file per sensor of a recording"),
		idOption(),
		mcp.WithString("dir",
			mcp.Description("Output directory; defaults to the configured export directory"),
		),
	)
}

func renameRecordTool() mcp.Tool {
	return mcp.NewTool(
		"rename_record",
		mcp.WithDescription("Changes the title and optionally the notes of a recording"),
		idOption(),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("New title"),
		),
		mcp.WithString("notes",
			mcp.Description("New notes; omitted keeps the current notes"),
		),
	)
}

func deleteRecordTool() mcp.Tool {
	return mcp.NewTool(
		"delete_record",
		mcp.WithDescription("Deletes a recording"),
		idOption(),
	)
}

func (s *Server) listRecordsHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return s.toolError("list_records", err), nil
	}
	out := ListResult{Records: make([]RecordSummary, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, summarize(r))
	}
	return mcp.NewToolResultStructuredOnly(out), nil
}

func (s *Server) getRecordHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input IDInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid get_record arguments", err), nil
	}
	rec, buf, err := s.rec.Load(ctx, input.ID)
	if err != nil {
		return s.toolError("get_record", err), nil
	}

	out := RecordDetail{
		RecordSummary: summarize(rec.Summary()),
		Components:    []ComponentCount{},
	}
	for _, k := range buf.Kinds() {
		n := buf.Len(k)
		for _, c := range buf.Selection(k).Components() {
			out.Components = append(out.Components, ComponentCount{
				Sensor:    k.String(),
				Component: k.ComponentLabel(c),
				Points:    n,
			})
		}
	}
	return mcp.NewToolResultStructuredOnly(out), nil
}

func (s *Server) exportRecordHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ExportInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid export_record arguments", err), nil
	}
	dir := s.exportDir
	if strings.TrimSpace(input.Dir) != "" {
		dir = input.Dir
	}
	if dir == "" {
		return mcp.NewToolResultError("no export directory configured"), nil
	}

	rec, buf, err := s.rec.Load(ctx, input.ID)
	if err != nil {
		return s.toolError("export_record", err), nil
	}
	files, err := export.New(dir, s.log).Export(rec.CreatedAt, buf)
	if err != nil {
		return s.toolError("export_record", err), nil
	}
	return mcp.NewToolResultStructuredOnly(ExportResult{Dir: dir, Files: files}), nil
}

func (s *Server) renameRecordHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input RenameInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid rename_record arguments", err), nil
	}
	if strings.TrimSpace(input.Title) == "" {
		return mcp.NewToolResultError("title must not be blank"), nil
	}

	rec, err := s.store.GetRecord(ctx, input.ID)
	if err != nil {
		return s.toolError("rename_record", err), nil
	}
	notes := rec.Notes
	if input.Notes != nil {
		notes = *input.Notes
	}
	found, err := s.store.UpdateRecord(ctx, input.ID, input.Title, notes)
	if err == nil && !found {
		err = apperr.New(apperr.CodeNotFound, fmt.Sprintf("record %d not found", input.ID))
	}
	if err != nil {
		return s.toolError("rename_record", err), nil
	}

	rec.Title, rec.Notes = input.Title, notes
	return mcp.NewToolResultStructuredOnly(summarize(rec.Summary())), nil
}

func (s *Server) deleteRecordHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input IDInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid delete_record arguments", err), nil
	}
	found, err := s.store.DeleteRecord(ctx, input.ID)
	if err != nil {
		return s.toolError("delete_record", err), nil
	}
	if !found {
		return s.toolError("delete_record", apperr.New(apperr.CodeNotFound, fmt.Sprintf("record %d not found", input.ID))), nil
	}
	s.log.Info("record deleted", zap.Int64("id", input.ID))
	return mcp.NewToolResultStructuredOnly(DeleteResult{ID: input.ID, Deleted: true}), nil
}

// toolError reports err as a tool result with the user-facing message.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	level := s.log.Warn
	if errors.Is(err, context.Canceled) {
		level = s.log.Debug
	}
	level("tool failed", zap.String("tool", tool), zap.Error(err))
	return mcp.NewToolResultError(apperr.UserMessage(err))
}

func summarize(r db.Summary) RecordSummary {
	sensors := make([]string, len(r.Kinds))
	for i, k := range r.Kinds {
		sensors[i] = k.Slug()
	}
	return RecordSummary{
		ID:        r.ID,
		Title:     r.Title,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedMs: r.CreatedAt.UnixMilli(),
		Sensors:   sensors,
	}
}
