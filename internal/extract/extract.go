// Package extract turns a natural-language query into a structured intent
// with song entities, using an OpenAI-compatible chat-completions endpoint.
// The model is asked for strict JSON, but real responses drift (code fences,
// bare arrays, prose), so parsing is written to recover rather than reject.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/models"
)

// Recognized intents. "list" means the user wants songs suggested or
// enumerated; "download" means they want them fetched.
const (
	IntentList     = "list"
	IntentDownload = "download"
)

const systemPrompt = `You are a music assistant. Given a user message, respond with JSON only:
{"intent": "list"|"download", "songs": [{"title": "...", "artist": "..."}], "suggestion": "..."}
Use "download" when the user asks to download or get songs, "list" otherwise.
For a list query about an artist, suggest several of their popular songs.
List every song the user mentions. Use an empty songs list when none are mentioned. No prose outside the JSON.`

// Client calls the configured chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
}

// NewClient builds a client from config. transport may be nil; pass the
// logging transport to capture traffic in api.log.
func NewClient(cfg models.Config, transport http.RoundTripper) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		apiURL: cfg.LlmApiUrl,
		apiKey: cfg.LlmApiKey,
		model:  cfg.LlmModel,
	}
}

// Configured reports whether an endpoint is set. An unconfigured client
// still answers Extract calls via the keyword fallback.
func (c *Client) Configured() bool {
	return c.apiURL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract classifies the query and pulls out song entities. A missing or
// failing model degrades to keyword classification instead of erroring; the
// surface behaves the same either way, just with less finesse.
func (c *Client) Extract(ctx context.Context, query string) (models.ExtractResponse, error) {
	if !c.Configured() {
		log.Debug("No LLM endpoint configured, using keyword intent fallback")
		return keywordFallback(query), nil
	}

	content, err := c.complete(ctx, query)
	if err != nil {
		log.WithError(err).Warn("LLM request failed, using keyword intent fallback")
		return keywordFallback(query), nil
	}

	parsed, ok := ParseModelResponse(content)
	if !ok {
		log.WithField("content", content).Warn("Unparseable LLM response, using keyword intent fallback")
		return keywordFallback(query), nil
	}
	return parsed, nil
}

// complete performs one chat-completions round trip and returns the raw
// message content.
func (c *Client) complete(ctx context.Context, query string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("performing chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from LLM endpoint", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// ParseModelResponse recovers a structured extraction from raw model output.
// Handles code-fenced JSON, objects with a missing intent (defaulted to
// "list", songs kept) and bare song arrays. Returns false when nothing
// JSON-shaped survives.
func ParseModelResponse(content string) (models.ExtractResponse, bool) {
	cleaned := stripCodeFences(content)

	var result models.ExtractResponse
	if err := json.Unmarshal([]byte(cleaned), &result); err == nil {
		if result.Intent == "" {
			result.Intent = IntentList
		}
		return result, true
	}

	// Some models answer a song list with no wrapper object. Treat that as a
	// download request.
	var songs []models.Song
	if err := json.Unmarshal([]byte(cleaned), &songs); err == nil {
		return models.ExtractResponse{Intent: IntentDownload, Songs: songs}, true
	}

	return models.ExtractResponse{}, false
}

// stripCodeFences removes a surrounding ``` or ```json fence, if present.
func stripCodeFences(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	if i := strings.LastIndex(cleaned, "```"); i >= 0 {
		cleaned = cleaned[:i]
	}
	return strings.TrimSpace(cleaned)
}

// keywordFallback classifies the query by keywords alone.
func keywordFallback(query string) models.ExtractResponse {
	lower := strings.ToLower(query)
	intent := IntentList
	if containsAny(lower, "download", "get me", "i want") {
		intent = IntentDownload
	}
	return models.ExtractResponse{
		Intent:     intent,
		Songs:      []models.Song{},
		Suggestion: "Sorry, I couldn't understand that. Try: 'list famous songs by [artist]' or 'download [song] by [artist]'",
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
