// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - CredentialStore: one credential per authorized account
//   - Ledger: processed-file records keyed by (fingerprint, account)
//   - CursorStore: one sync cursor per account
//   - VocabularyStore: learned tag names per scope
//   - RemoteStore / RemoteStoreFactory: the cloud app folder
//   - Extractor: the OCR capability
//   - AuthProvider: the OAuth code and refresh grants
//   - Destination: where outputs and archived originals go
//
// # Optional Interfaces
//
// These can be nil or no-op and the application degrades gracefully:
//
//   - Notifier: best-effort event sink
//   - AuditLog: structured per-stage records
//   - Provisioner: first-time remote folder layout
//   - SchedulerStore: task state for the scheduler
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
