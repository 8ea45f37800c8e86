package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Mode selects the instruction given to the model.
type Mode string

const (
	ModeKeywords Mode = "Keywords"
	ModeTopics   Mode = "Topics"
	ModeCustom   Mode = "Custom Prompt"

	DefaultNumTags = 8
)

// Generator is the part of *genai.GenerativeModel the tagger needs.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Config holds tagger settings.
type Config struct {
	Mode         Mode
	CustomPrompt string
	NumTags      int
	MaxPDFPages  int
}

// Instruction returns the user prompt for the configured mode.
func (c Config) Instruction() string {
	n := c.NumTags
	if n <= 0 {
		n = DefaultNumTags
	}
	switch c.Mode {
	case ModeKeywords, "":
		return fmt.Sprintf("Extract exactly %d concise keywords that summarize this document.", n)
	case ModeTopics:
		return fmt.Sprintf("List %d major themes or subjects covered in the document.", n)
	case ModeCustom:
		if strings.TrimSpace(c.CustomPrompt) != "" {
			return c.CustomPrompt
		}
	}
	return "Extract relevant tags."
}

// Tagger turns raw document bytes into a tag list: text extraction (or PDF
// trimming) followed by one model call.
type Tagger struct {
	model  Generator
	config Config
}

// NewTagger creates a Tagger around a configured generative model.
func NewTagger(model Generator, cfg Config) *Tagger {
	if cfg.MaxPDFPages == 0 {
		cfg.MaxPDFPages = DefaultMaxPDFPages
	}
	return &Tagger{model: model, config: cfg}
}

// ExtractAndTag implements the tag extractor used by the document pipeline.
func (t *Tagger) ExtractAndTag(ctx context.Context, data []byte, filename string) ([]string, error) {
	logCtx := slog.With("filename", filename)
	prompt := genai.Text(t.config.Instruction())

	var parts []genai.Part
	if kindOf(filename) == kindPDF {
		trimmed, err := trimPDF(data, t.config.MaxPDFPages)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filename, err)
		}
		parts = []genai.Part{genai.Blob{MIMEType: "application/pdf", Data: trimmed}, prompt}
	} else {
		text, err := ExtractText(data, filename)
		if err != nil {
			return nil, err
		}
		parts = []genai.Part{prompt, genai.Text(text)}
	}

	resp, err := t.model.GenerateContent(ctx, parts...)
	if err != nil {
		logCtx.Error("Call to Vertex AI for tagging failed", "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrTaggingFailed, filename, err)
	}

	tags := ParseTags(responseText(resp))
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: %s: model returned no tags", ErrTaggingFailed, filename)
	}
	logCtx.Debug("Model returned tags.", "tags", tags)
	return tags, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
