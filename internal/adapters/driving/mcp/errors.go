// Package mcp provides an MCP (Model Context Protocol) server adapter for ocrbox.
// It lets assistants inspect the processing ledger, read and teach the tag
// vocabulary, and run files through the pipeline.
package mcp

import "errors"

// ErrMissingLedger is returned when the ledger is not provided.
var ErrMissingLedger = errors.New("mcp: ledger is required")

// ErrMissingVocabulary is returned when the vocabulary registry is not provided.
var ErrMissingVocabulary = errors.New("mcp: vocabulary registry is required")
