package domain

// TagProposal is a tag suggested by the extractor.
type TagProposal struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Primary    bool   `json:"primary"`
}

// Extraction is the ephemeral result of an OCR call.
type Extraction struct {
	Text      string
	Title     string
	Proposals []TagProposal

	// Raw is the provider's unparsed response, kept for the audit log.
	Raw string

	// Model names the model that produced the result.
	Model string
}
