package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"purescan/internal/model"
)

const geminiPrompt = `Analyze this food image for quality and freshness.
Return ONLY a JSON object with this structure: { "score": number (0-100), "text": "short analysis string", "food": "name of the food" }.
If it's not food, return score 0 and text "Not food detected".`

// Gemini asks a Gemini model for a verdict, sending the image inline.
type Gemini struct {
	apiKey     string
	model      string
	httpClient *http.Client
	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string

	mu     sync.Mutex
	client *genai.Client
}

func NewGemini(apiKey, modelName string, httpClient *http.Client) *Gemini {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Gemini{
		apiKey:     apiKey,
		model:      modelName,
		httpClient: httpClient,
	}
}

// genaiClient builds the SDK client on first use and reuses it afterwards.
func (g *Gemini) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

func (g *Gemini) Analyze(ctx context.Context, image []byte, mimeType string) (*model.Assessment, error) {
	if g.apiKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := g.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(geminiPrompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("%w: no candidates", ErrBadResponse)
	}
	return ParseAssessment(text)
}
