// Package connectors holds the storage backends content is read from and
// written to: the local inbox directory (filesystem) and the remote app
// folder of each authorized account (dropbox).
package connectors
