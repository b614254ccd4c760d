package tesseract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

func emptyRequest() driven.ExtractionRequest {
	return driven.ExtractionRequest{MIMEType: "image/png"}
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "CORNER SHOP", titleFrom("\n  \n CORNER SHOP \nTOTAL 3.00"))
	assert.Equal(t, "", titleFrom("   "))
}

func TestProposeTags(t *testing.T) {
	text := "Corner Shop\nReceipt #42\nSubtotal 3.00\nTotal 3.50\nPaid by bank card"
	got := proposeTags(text, []string{"receipts", "finance", "travel"})

	require.Len(t, got, 2)
	assert.Equal(t, "receipts", got[0].Name)
	assert.True(t, got[0].Primary)
	assert.Equal(t, 95, got[0].Confidence)
	assert.Equal(t, "finance", got[1].Name)
	assert.False(t, got[1].Primary)
	assert.Equal(t, 70, got[1].Confidence)
}

func TestProposeTagsNoMatch(t *testing.T) {
	assert.Empty(t, proposeTags("lorem ipsum", []string{"travel"}))
}

func TestNewAndExtract(t *testing.T) {
	e, err := New()
	if err != nil {
		assert.ErrorIs(t, err, ErrUnsupported)
		return
	}
	assert.Equal(t, "tesseract", e.Name())
	_, err = e.Extract(context.Background(), emptyRequest())
	assert.Error(t, err)
}
