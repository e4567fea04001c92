package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/snapmap-io/snapmap/internal/config"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// classifyPrompt instructs the model to answer with one token so the
// response can be parsed without a schema. The 1-4 scale matches the
// category names shown to users.
const classifyPrompt = `Analyze this image carefully:

1. First, determine if this is an INVALID upload. Invalid uploads include:
   - Selfies or portraits of people
   - Memes, screenshots, or text-heavy images
   - Indoor scenes
   - Random objects not related to waste
   - Any inappropriate or irrelevant content

2. If it IS a valid photo of litter or waste, rate the trash amount from 1-4:
   - 1 = Light Litter: A few scattered items, minimal waste
   - 2 = Moderate Trash: Noticeable pile or bag, moderate amount
   - 3 = Heavy Debris: Large pile, multiple bags, visibly dense waste
   - 4 = Severe Pollution: Huge dump site, overflowing bins, very large accumulation

OUTPUT ONLY ONE OF THESE:
- 'TRASH' if the upload is invalid
- '1' for light litter
- '2' for moderate trash
- '3' for heavy debris
- '4' for severe pollution

Output only the single word or number, nothing else.`

var (
	// ErrAPIKeyEmpty is returned when no API key is configured.
	ErrAPIKeyEmpty = errors.New("api key cannot be empty")

	// ErrClassifyFailed is returned when the model call fails.
	ErrClassifyFailed = errors.New("image classification failed")

	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("empty model response")
)

// GeminiConfig holds model API configuration.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LoadGeminiConfig loads model configuration from environment variables.
func LoadGeminiConfig() *GeminiConfig {
	return &GeminiConfig{
		APIKey:  config.GetEnvStr("SNAPMAP_GEMINI_API_KEY", ""),
		Model:   config.GetEnvStr("SNAPMAP_GEMINI_MODEL", "gemini-2.5-flash"),
		BaseURL: config.GetEnvStr("SNAPMAP_GEMINI_BASE_URL", defaultGeminiBaseURL),
		Timeout: config.GetEnvDuration("SNAPMAP_GEMINI_TIMEOUT", 60*time.Second),
	}
}

// Validate checks the model configuration.
func (c *GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return ErrAPIKeyEmpty
	}

	return nil
}

// GeminiClassifier implements Classifier against the Gemini REST API.
type GeminiClassifier struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiClassifier creates a classifier from configuration.
func NewGeminiClassifier(cfg *GeminiConfig) (*GeminiClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With("component", "gemini-classifier")

	return &GeminiClassifier{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Classify sends the image to the model and parses its one-token answer.
func (c *GeminiClassifier) Classify(ctx context.Context, image []byte) (Verdict, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: classifyPrompt},
				{InlineData: &geminiInlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: failed to marshal request: %w", ErrClassifyFailed, err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrClassifyFailed, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrClassifyFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: failed to read response: %w", ErrClassifyFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("%w: status %d: %s", ErrClassifyFailed, resp.StatusCode, respBody)
	}

	text, err := extractText(respBody)
	if err != nil {
		return Verdict{}, err
	}

	verdict := ParseVerdict(text)

	c.logger.Debug("image classified",
		"model", c.model,
		"raw_response", text,
		"rejected", verdict.Rejected,
		"category", int(verdict.Category))

	return verdict, nil
}

// extractText pulls the first candidate's text out of a model response.
func extractText(body []byte) (string, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ErrClassifyFailed, err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
