package gemini

import (
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const systemInstruction = `You transcribe images of documents, receipts, notes and screenshots.
Reply with JSON only.`

const promptTemplate = `Extract all text from this image. Preserve the layout and line breaks as much as possible.
If the image contains no text, set "text" to "No text found.".

Then describe the image:
- "title": a short descriptive title of at most six words.
- "tags": up to 5 categories chosen ONLY from this list: %s
  Give each a "confidence" from 0 to 100. Mark exactly one tag, the best fit, with "primary": true.`

func buildPrompt(vocabulary []string) string {
	list := "(none)"
	if len(vocabulary) > 0 {
		list = strings.Join(vocabulary, ", ")
	}
	return fmt.Sprintf(promptTemplate, list)
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text":  {Type: genai.TypeString},
			"title": {Type: genai.TypeString},
			"tags": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":       {Type: genai.TypeString},
						"confidence": {Type: genai.TypeInteger},
						"primary":    {Type: genai.TypeBoolean},
					},
					Required: []string{"name", "confidence"},
				},
			},
		},
		Required: []string{"text", "title", "tags"},
	}
}
