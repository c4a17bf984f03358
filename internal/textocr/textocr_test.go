package textocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguages(t *testing.T) {
	assert.Equal(t, []string{"eng"}, Languages(""))
	assert.Equal(t, []string{"ara", "eng"}, Languages("ara+eng"))
	assert.Equal(t, []string{"deu"}, Languages(" deu + "))
}

func TestClean(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune
	assert.Equal(t, "caf\u00e9", Clean("  cafe\u0301 \r\n"))
	assert.Equal(t, "line1\nline2", Clean("line1\r\nline2"))
	assert.Equal(t, "", Clean(" \n\t "))
}

func TestReport(t *testing.T) {
	var got []float64
	fn := func(f float64) { got = append(got, f) }

	Report(fn, -0.5)
	Report(fn, 0.42)
	Report(fn, 3)
	Report(nil, 0.5)

	assert.Equal(t, []float64{0, 0.42, 1}, got)
}

func TestGemini_Recognize(t *testing.T) {
	img := []byte("\x89PNG\r\n\x1a\nfake")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var body struct {
			Contents []struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData struct {
						MimeType string `json:"mime_type"`
						Data     string `json:"data"`
					} `json:"inline_data"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		require.Len(t, body.Contents[0].Parts, 2)
		assert.Contains(t, body.Contents[0].Parts[0].Text, "ara, eng")
		assert.Equal(t, "image/png", body.Contents[0].Parts[1].InlineData.MimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString(img), body.Contents[0].Parts[1].InlineData.Data)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini("secret", "test-model", time.Second)
	g.BaseURL = srv.URL

	var progress []float64
	text, err := g.Recognize(context.Background(), img, "ara+eng", func(f float64) { progress = append(progress, f) })
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []float64{0, 1}, progress)
}

func TestGemini_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGemini("k", "", time.Second)
	g.BaseURL = srv.URL

	_, err := g.Recognize(context.Background(), []byte("x"), "eng", nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "gemini 429"))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGemini_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	g := NewGemini("k", "m", time.Second)
	g.BaseURL = srv.URL

	text, err := g.Recognize(context.Background(), []byte("x"), "", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGemini_MissingKey(t *testing.T) {
	_, err := NewGemini("", "", 0).Recognize(context.Background(), nil, "eng", nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, DefaultGeminiModel, NewGemini("", "", 0).Model)
}
