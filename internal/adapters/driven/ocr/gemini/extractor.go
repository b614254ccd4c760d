// Package gemini implements the OCR extractor on the Gemini API.
//
// One request carries the image and a prompt listing the tag vocabulary.
// The model answers with a JSON object holding the transcription, a short
// title and scored tag proposals. Failures are classified into transient
// and permanent so the pipeline knows whether to retry.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// generator is the subset of *genai.GenerativeModel the extractor needs.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Config configures the extractor.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Extractor sends images to Gemini.
type Extractor struct {
	client  *genai.Client
	model   generator
	name    string
	timeout time.Duration
}

// New creates an extractor. Close releases the underlying client.
func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", domain.ErrValidation)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	e := newExtractor(configureModel(client.GenerativeModel(cfg.Model)), cfg.Model, cfg.Timeout)
	e.client = client
	return e, nil
}

func newExtractor(model generator, name string, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Extractor{model: model, name: name, timeout: timeout}
}

// configureModel requests JSON output matching responseSchema and relaxes
// safety filters, since scanned documents trip them easily.
func configureModel(m *genai.GenerativeModel) *genai.GenerativeModel {
	m.SetTemperature(0.1)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = responseSchema()
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	return m
}

// Name returns the model name.
func (e *Extractor) Name() string {
	return "gemini/" + e.name
}

// Extract transcribes req.Content and proposes tags from req.Vocabulary.
func (e *Extractor) Extract(ctx context.Context, req driven.ExtractionRequest) (*domain.Extraction, error) {
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	mime := req.MIMEType
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: unsupported content type %q", domain.ErrValidation, mime)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mime, Data: req.Content},
		genai.Text(buildPrompt(req.Vocabulary)),
	)
	if err != nil {
		return nil, classify(err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	extraction, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	extraction.Model = e.name
	return extraction, nil
}

// Close releases the client.
func (e *Extractor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("%w: prompt blocked: %v", domain.ErrValidation, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: empty response", domain.ErrTransient)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("%w: candidate has no content (finish reason %v)", domain.ErrValidation, cand.FinishReason)
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: candidate has no text", domain.ErrValidation)
	}
	return b.String(), nil
}
