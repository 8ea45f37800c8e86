package tagging

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	reply string
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(f.reply)}},
		}},
	}, nil
}

func TestExtractAndTag_Text(t *testing.T) {
	gen := &fakeGenerator{reply: "```\ninvoice, 2024\n```"}
	tagger := NewTagger(gen, Config{Mode: ModeKeywords, NumTags: 2})

	tags, err := tagger.ExtractAndTag(context.Background(), []byte("Invoice 2024 for Acme"), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice", "2024"}, tags)

	require.Len(t, gen.parts, 2)
	assert.Equal(t, genai.Text("Extract exactly 2 concise keywords that summarize this document."), gen.parts[0])
	assert.Equal(t, genai.Text("Invoice 2024 for Acme"), gen.parts[1])
}

func TestExtractAndTag_ModelErrorIsTaggingFailed(t *testing.T) {
	tagger := NewTagger(&fakeGenerator{err: errors.New("quota")}, Config{})

	_, err := tagger.ExtractAndTag(context.Background(), []byte("text"), "a.txt")
	assert.ErrorIs(t, err, ErrTaggingFailed)
}

func TestExtractAndTag_EmptyReplyIsTaggingFailed(t *testing.T) {
	tagger := NewTagger(&fakeGenerator{reply: "  "}, Config{})

	_, err := tagger.ExtractAndTag(context.Background(), []byte("text"), "a.txt")
	assert.ErrorIs(t, err, ErrTaggingFailed)
}

func TestExtractAndTag_InvalidPDFIsExtractionFailed(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	tagger := NewTagger(gen, Config{})

	_, err := tagger.ExtractAndTag(context.Background(), []byte("%PDF-garbage"), "scan.pdf")
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Nil(t, gen.parts, "model must not be called")
}

func TestConfigInstruction(t *testing.T) {
	assert.Equal(t, "Extract exactly 8 concise keywords that summarize this document.", Config{}.Instruction())
	assert.Equal(t, "List 5 major themes or subjects covered in the document.", Config{Mode: ModeTopics, NumTags: 5}.Instruction())
	assert.Equal(t, "Tag by customer name.", Config{Mode: ModeCustom, CustomPrompt: "Tag by customer name."}.Instruction())
	assert.Equal(t, "Extract relevant tags.", Config{Mode: ModeCustom}.Instruction())
	assert.Equal(t, "Extract relevant tags.", Config{Mode: "Other"}.Instruction())
}
