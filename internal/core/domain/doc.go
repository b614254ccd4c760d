// Package domain defines the core business entities for ocrbox.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - AccountCredential: tokens for one authorized remote account
//   - SyncCursor: an account's position in the remote change stream
//   - ProcessedFile: the ledger record of one processing attempt
//   - Extraction: the ephemeral result of an OCR call
//   - VocabularyEntry: a seed or learned tag name
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
