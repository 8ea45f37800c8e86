package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// TaggerSystemPrompt frames every tagging request.
const TaggerSystemPrompt = "You extract short, relevant tags from documents. Reply with the tags only, separated by commas, with no numbering, preamble or explanation."

// VertexClient holds the pre-configured generative model used for tagging.
type VertexClient struct {
	TaggerModel *genai.GenerativeModel
	baseClient  *genai.Client
}

// NewVertexClient creates a client holding the tagger model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	taggerModel := baseClient.GenerativeModel(modelName)
	taggerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TaggerSystemPrompt)},
	}
	taggerModel.SetTemperature(0.3)
	taggerModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		TaggerModel: taggerModel,
		baseClient:  baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
