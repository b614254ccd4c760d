package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const uriScheme = "ocrbox://"

// localScope names the local inbox in resource URIs.
const localScope = "local"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Processing ledger totals per account",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "accounts/{accountId}/recent",
		Name:        "account-recent",
		Description: "Newest ledger records of an account; use \"local\" for the local inbox",
		MIMEType:    "application/json",
	}, s.handleRecentResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "accounts/{accountId}/tags",
		Name:        "account-tags",
		Description: "Tag vocabulary of an account, one tag per line",
		MIMEType:    "text/plain",
	}, s.handleTagsResource)
}

func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	_, out, err := s.handleStats(ctx, nil, StatsInput{})
	if err != nil {
		return nil, fmt.Errorf("reading ledger stats: %w", err)
	}
	return jsonResult(req.Params.URI, out.Accounts)
}

func (s *Server) handleRecentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	accountID, ok := extractAccountID(req.Params.URI, "/recent")
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	_, out, err := s.handleRecent(ctx, nil, RecentInput{AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("reading recent records: %w", err)
	}
	return jsonResult(req.Params.URI, out.Files)
}

func (s *Server) handleTagsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	accountID, ok := extractAccountID(req.Params.URI, "/tags")
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	_, out, err := s.handleListTags(ctx, nil, TagsInput{AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     strings.Join(out.Tags, "\n"),
		}},
	}, nil
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractAccountID reads {accountId} from ocrbox://accounts/{accountId}<suffix>.
// The local scope maps to the empty account ID.
func extractAccountID(uri, suffix string) (string, bool) {
	const prefix = uriScheme + "accounts/"
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return "", false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	if raw == "" {
		return "", false
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	if id == localScope {
		return "", true
	}
	return id, true
}
