package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
)

const (
	defaultBaseURL             = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel               = "gemini-2.5-flash"
	errorBodyReadLimit   int64 = 1024
	classifyUserPrompt         = "Analyze this image for a security patrol report. Is the area secure? What is visible?"
	classifySystemPrompt       = "You are a professional security AI assistant for an office-building patrol system. " +
		"Analyze the image uploaded by the guard. " +
		"Identify whether the area looks tidy, safe and under control. " +
		"Look for hazards such as fire, spilled water, loose cabling, unknown persons or broken windows. " +
		"Return a security status of secure, attention or danger plus a short summary of at most two sentences."
)

var (
	errAPIKeyRequired     = errors.New("classifier api key is required")
	errClassifierDisabled = errors.New("classifier is not configured")
)

// GeminiClient calls the Gemini generateContent API with a structured-output
// schema so the verdict parses directly into a ClassificationResult.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ Classifier = (*GeminiClient)(nil)

// Option configures optional client behavior.
type Option func(*GeminiClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *GeminiClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Gemini API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *GeminiClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithModel overrides the model used for classification.
func WithModel(model string) Option {
	return func(c *GeminiClient) {
		trimmed := strings.TrimSpace(model)
		if trimmed != "" {
			c.model = trimmed
		}
	}
}

// NewGeminiClient builds the Gemini classifier given an API key.
func NewGeminiClient(apiKey string, opts ...Option) (*GeminiClient, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &GeminiClient{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// verdictSchema constrains the model output to the exact JSON shape the
// workflow persists.
var verdictSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"status": {"type": "STRING", "enum": ["secure", "attention", "danger"]},
		"summary": {"type": "STRING"},
		"items_detected": {"type": "ARRAY", "items": {"type": "STRING"}}
	},
	"required": ["status", "summary", "items_detected"]
}`)

// Classify sends the JPEG frame to Gemini and parses the structured verdict.
// Every failure mode maps to a classification-unavailable error so callers
// can absorb it uniformly.
func (c *GeminiClient) Classify(ctx context.Context, imageJPEG []byte) (models.ClassificationResult, error) {
	if c == nil {
		return models.ClassificationResult{}, pkgerrors.New(pkgerrors.CodeClassificationUnavailable, "classifier not configured")
	}
	if len(imageJPEG) == 0 {
		return models.ClassificationResult{}, pkgerrors.New(pkgerrors.CodeValidation, "evidence image is required")
	}

	reqBody := generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(imageJPEG)}},
				{Text: classifyUserPrompt},
			},
		}},
		SystemInstruction: &content{Parts: []part{{Text: classifySystemPrompt}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   verdictSchema,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.ClassificationResult{}, pkgerrors.Wrap(pkgerrors.CodeClassificationUnavailable, err, "marshal classify request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.baseURL, "/"), c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return models.ClassificationResult{}, pkgerrors.Wrap(pkgerrors.CodeClassificationUnavailable, err, "build classify request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.ClassificationResult{}, pkgerrors.Wrap(pkgerrors.CodeClassificationUnavailable, err, "execute classify request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return models.ClassificationResult{}, pkgerrors.Wrap(
			pkgerrors.CodeClassificationUnavailable,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"classify request failed",
		)
	}

	var apiResp generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return models.ClassificationResult{}, pkgerrors.Wrap(pkgerrors.CodeClassificationUnavailable, err, "decode classify response")
	}

	text := apiResp.firstText()
	if text == "" {
		return models.ClassificationResult{}, pkgerrors.New(pkgerrors.CodeClassificationUnavailable, "empty classifier response")
	}

	var verdict models.ClassificationResult
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return models.ClassificationResult{}, pkgerrors.Wrap(pkgerrors.CodeClassificationUnavailable, err, "parse classifier verdict")
	}
	if !verdict.Status.IsValid() {
		return models.ClassificationResult{}, pkgerrors.New(
			pkgerrors.CodeClassificationUnavailable,
			fmt.Sprintf("classifier returned unknown status %q", verdict.Status),
		)
	}
	if verdict.ItemsDetected == nil {
		verdict.ItemsDetected = []string{}
	}
	return verdict, nil
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r generateContentResponse) firstText() string {
	for _, candidate := range r.Candidates {
		for _, p := range candidate.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text
			}
		}
	}
	return ""
}
