package textocr

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

	"github.com/MeKo-Tech/scan2sheets/internal/version"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-1.5-flash"
	// DefaultGeminiBaseURL is the public Generative Language API root.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1"
)

// ErrMissingAPIKey is returned when the Gemini engine has no key.
var ErrMissingAPIKey = errors.New("gemini: api key is empty")

const geminiPrompt = `Transcribe all text visible in this image exactly as written, including handwriting.
Preferred language codes (Tesseract style): %s.
Return only the transcribed text with original line breaks. Return an empty response if there is no text.`

// Gemini recognizes text through the Gemini generateContent endpoint.
type Gemini struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

// NewGemini creates a Gemini engine. An empty model selects DefaultGeminiModel.
func NewGemini(apiKey, model string, timeout time.Duration) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: DefaultGeminiBaseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (g *Gemini) Name() string { return "gemini" }

// Recognize sends the image inline and returns the model's transcription.
func (g *Gemini) Recognize(ctx context.Context, image []byte, lang string, onProgress ProgressFunc) (string, error) {
	if g.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	Report(onProgress, 0)

	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{
					map[string]any{"text": fmt.Sprintf(geminiPrompt, strings.Join(Languages(lang), ", "))},
					map[string]any{"inline_data": map[string]any{
						"mime_type": http.DetectContentType(image),
						"data":      base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		"generationConfig": map[string]any{"temperature": 0},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(g.BaseURL, "/"), g.Model, g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	Report(onProgress, 1)

	if len(out.Candidates) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
