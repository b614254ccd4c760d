// Command ocrbox transcribes and files scanned images from a local inbox
// and from authorized Dropbox accounts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/ocrbox/internal/adapters/driving/cli"
)

// version is set with -ldflags "-X main.version=...".
var version string

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
