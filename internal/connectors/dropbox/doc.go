// Package dropbox implements the remote store over a Dropbox app folder.
//
// Each authorized account gets its own Store built from its access token.
// Listing uses the files/list_folder cursor API so each poll only returns
// changes since the previous one. SDK errors are mapped onto the domain
// taxonomy in errors.go so the synchronizer can tell an expired token from
// an expired cursor or a transient outage.
package dropbox
