package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 200
)

// StatsInput is the input schema for the ledger_stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the ledger_stats tool.
type StatsOutput struct {
	Accounts []AccountStats `json:"accounts"`
}

// AccountStats is one account's ledger totals.
type AccountStats struct {
	AccountID string    `json:"account_id"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
	LastAt    time.Time `json:"last_at,omitzero"`
}

// RecentInput is the input schema for the recent_files tool.
type RecentInput struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"account scope; empty for the local inbox"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of records to return (default 10)"`
}

// RecentOutput is the output schema for the recent_files tool.
type RecentOutput struct {
	Files []FileRecord `json:"files"`
	Count int          `json:"count"`
}

// FileRecord is one ledger entry.
type FileRecord struct {
	SourceName string    `json:"source_name"`
	Status     string    `json:"status"`
	OutputPath string    `json:"output_path,omitempty"`
	Title      string    `json:"title,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TagsInput is the input schema for the list_tags tool.
type TagsInput struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"account scope; empty for the local inbox"`
}

// TagsOutput is the output schema for the list_tags and learn_tags tools.
type TagsOutput struct {
	Tags []string `json:"tags"`
}

// LearnInput is the input schema for the learn_tags tool.
type LearnInput struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"account scope; empty for the local inbox"`
	Filename  string `json:"filename" jsonschema:"an output filename such as [receipts][travel]_hotel_invoice.txt"`
}

// ProcessInput is the input schema for the process_file tool.
type ProcessInput struct {
	Path string `json:"path" jsonschema:"path of a local image file"`
}

// ProcessOutput is the output schema for the process_file tool.
type ProcessOutput struct {
	File             FileRecord `json:"file"`
	AlreadyProcessed bool       `json:"already_processed"`
}

// PollInput is the input schema for the poll_account tool.
type PollInput struct {
	AccountID string `json:"account_id" jsonschema:"the remote account to poll"`
}

// PollOutput is the output schema for the poll_account tool.
type PollOutput struct {
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Learned    int    `json:"learned"`
	FullResync bool   `json:"full_resync"`
	Error      string `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ledger_stats",
		Description: "Processed, failed and pending file counts per account",
	}, s.handleStats)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recent_files",
		Description: "Newest processing ledger records for an account",
	}, s.handleRecent)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_tags",
		Description: "Tag vocabulary used to classify an account's documents",
	}, s.handleListTags)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "learn_tags",
		Description: "Teach new tags from a [tag]_title style filename",
	}, s.handleLearnTags)

	if s.ports.Local != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "process_file",
			Description: "OCR and classify a local image file",
		}, s.handleProcess)
	}
	if s.ports.Sync != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "poll_account",
			Description: "Run one poll cycle against a remote account's inbox",
		}, s.handlePoll)
	}
}

func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Ledger.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	out := StatsOutput{Accounts: make([]AccountStats, len(stats))}
	for i, st := range stats {
		out.Accounts[i] = AccountStats{
			AccountID: st.AccountID,
			Success:   st.Success,
			Failed:    st.Failed,
			Pending:   st.Pending,
			LastAt:    st.LastAt,
		}
	}
	return nil, out, nil
}

func (s *Server) handleRecent(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RecentInput,
) (*mcp.CallToolResult, RecentOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)

	records, err := s.ports.Ledger.Recent(ctx, input.AccountID, limit)
	if err != nil {
		return nil, RecentOutput{}, err
	}
	out := RecentOutput{Files: make([]FileRecord, len(records)), Count: len(records)}
	for i := range records {
		out.Files[i] = toFileRecord(&records[i])
	}
	return nil, out, nil
}

func (s *Server) handleListTags(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TagsInput,
) (*mcp.CallToolResult, TagsOutput, error) {
	vocab, err := s.ports.Vocabulary.Scope(ctx, input.AccountID, nil)
	if err != nil {
		return nil, TagsOutput{}, err
	}
	return nil, TagsOutput{Tags: vocab.Names()}, nil
}

func (s *Server) handleLearnTags(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LearnInput,
) (*mcp.CallToolResult, TagsOutput, error) {
	if input.Filename == "" {
		return nil, TagsOutput{}, fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	vocab, err := s.ports.Vocabulary.Scope(ctx, input.AccountID, nil)
	if err != nil {
		return nil, TagsOutput{}, err
	}
	learned, err := vocab.Learn(ctx, input.Filename)
	if err != nil {
		return nil, TagsOutput{}, err
	}
	if learned == nil {
		learned = []string{}
	}
	return nil, TagsOutput{Tags: learned}, nil
}

func (s *Server) handleProcess(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProcessInput,
) (*mcp.CallToolResult, ProcessOutput, error) {
	if input.Path == "" {
		return nil, ProcessOutput{}, fmt.Errorf("%w: path is required", domain.ErrValidation)
	}
	outcome, err := s.ports.Local.ProcessFile(ctx, input.Path)
	if err != nil {
		return nil, ProcessOutput{}, err
	}
	return nil, ProcessOutput{
		File:             toFileRecord(&outcome.Record),
		AlreadyProcessed: outcome.AlreadyProcessed,
	}, nil
}

func (s *Server) handlePoll(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PollInput,
) (*mcp.CallToolResult, PollOutput, error) {
	if input.AccountID == "" {
		return nil, PollOutput{}, fmt.Errorf("%w: account_id is required", domain.ErrValidation)
	}
	r := s.ports.Sync.PollAccount(ctx, input.AccountID)
	out := PollOutput{
		Processed:  r.Processed,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Learned:    r.Learned,
		FullResync: r.FullResync,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return nil, out, nil
}

func toFileRecord(r *domain.ProcessedFile) FileRecord {
	return FileRecord{
		SourceName: r.SourceName,
		Status:     string(r.Status),
		OutputPath: r.OutputPath,
		Title:      r.Title,
		Tags:       r.TagNames(),
		Attempts:   r.Attempts,
		Error:      r.Error,
		UpdatedAt:  r.UpdatedAt,
	}
}
