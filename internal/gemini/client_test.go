package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/teemow/templatemail/internal/rewrite"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
	calls       int
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "gemini-1.5-flash")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_Generate(t *testing.T) {
	models := &fakeModels{resp: textResponse("<p>Hello Sam</p>")}
	client := &Client{models: models, model: "gemini-1.5-flash"}

	text, err := client.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello Sam</p>", text)

	assert.Equal(t, "gemini-1.5-flash", models.gotModel)
	require.Len(t, models.gotContents, 1)
	require.Len(t, models.gotContents[0].Parts, 1)
	assert.Equal(t, "prompt text", models.gotContents[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleUser), models.gotContents[0].Role)

	require.NotNil(t, models.gotConfig)
	require.NotNil(t, models.gotConfig.Temperature)
	assert.InDelta(t, 0.2, *models.gotConfig.Temperature, 1e-6)
	assert.Equal(t, int32(8192), models.gotConfig.MaxOutputTokens)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
	}{
		{"api error", &fakeModels{err: errors.New("permission denied")}},
		{"empty response", &fakeModels{resp: textResponse("   ")}},
		{"no candidates", &fakeModels{resp: &genai.GenerateContentResponse{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{models: tt.models, model: "m"}

			_, err := client.Generate(context.Background(), "p")
			assert.ErrorIs(t, err, rewrite.ErrGenerationFailed)
			assert.Equal(t, 1, tt.models.calls)
		})
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{Err: ErrMissingAPIKey}.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, rewrite.ErrGenerationFailed)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
