// Package filesystem provides the local inbox, outbox and archive folders.
//
// Source scans and watches the inbox with fsnotify, debouncing bursts of
// writes so a file is only reported once it has settled. Renames into the
// outbox are reported too, so hand-edited tags can be learned.
// Destination writes outputs atomically and moves originals into the
// archive with a numeric suffix on collision.
package filesystem
