package domain

import (
	"encoding/json"
	"path"
	"strings"
	"time"
)

// AuditKind names an audit log entry type.
type AuditKind string

// Audit entry kinds.
const (
	AuditExtraction     AuditKind = "llm_response"
	AuditProcessing     AuditKind = "processing"
	AuditClassification AuditKind = "classification"
	AuditError          AuditKind = "error"
	AuditTagsSnapshot   AuditKind = "tags_snapshot"
)

// AuditEntry is one structured audit record.
type AuditEntry struct {
	Kind      AuditKind      `json:"kind"`
	AccountID string         `json:"account_id,omitempty"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// FileName returns the name the entry is stored under,
// e.g. "scan_processing.json" for source "/Inbox/scan.jpg".
func (e AuditEntry) FileName() string {
	stem := strings.TrimSuffix(path.Base(e.Source), path.Ext(e.Source))
	if stem == "" || stem == "." || stem == "/" {
		stem = "ocrbox"
	}
	return stem + "_" + string(e.Kind) + ".json"
}

// Marshal encodes the entry as indented JSON.
func (e AuditEntry) Marshal() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
