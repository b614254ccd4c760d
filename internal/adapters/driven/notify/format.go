package notify

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

const userAgent = "ocrbox/1"

// message is the transport-neutral rendering of an event.
type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func render(e domain.Event) message {
	switch e.Kind {
	case domain.EventProcessed:
		var b strings.Builder
		fmt.Fprintf(&b, "Processed %s", e.SourceName)
		if e.OutputPath != "" {
			fmt.Fprintf(&b, "\nOutput: %s", e.OutputPath)
		}
		if len(e.Tags) > 0 {
			fmt.Fprintf(&b, "\nTags: %s", strings.Join(e.Tags, ", "))
		}
		if e.Excerpt != "" {
			fmt.Fprintf(&b, "\n\n%s", e.Excerpt)
		}
		return message{title: "ocrbox - Processed", body: b.String(), tags: []string{"ocrbox", "processed"}}

	case domain.EventFailed:
		body := fmt.Sprintf("Failed to process %s", e.SourceName)
		if e.Error != "" {
			body += ": " + strings.TrimSpace(e.Error)
		}
		return message{title: "ocrbox - Error", body: body, tags: []string{"ocrbox", "error"}, priority: "high"}

	case domain.EventBatchSummary:
		body := fmt.Sprintf("Batch complete: %d processed", e.Processed)
		if e.Failed > 0 {
			body = fmt.Sprintf("Batch complete: %d processed, %d failed", e.Processed, e.Failed)
		}
		if e.AccountID != "" {
			body += "\nAccount: " + e.AccountID
		}
		return message{title: "ocrbox - Batch Summary", body: body, tags: []string{"ocrbox", "summary"}}

	default:
		return message{title: "ocrbox", body: string(e.Kind), tags: []string{"ocrbox"}}
	}
}
