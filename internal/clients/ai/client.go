// Package ai provides the outbound gateway to the two LLM services: the
// heavyweight analysis model and the search-capable sentiment model. The
// gateway returns raw text and does no retries; phase logic decides how to
// proceed on failure.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the AI gateway configuration.
type Config struct {
	// AnalysisURL is the base URL of the analysis model service
	// (Ollama-compatible generate API).
	AnalysisURL string
	// SearchURL is the base URL of the search model service
	// (chat-completions API with live search).
	SearchURL string
	// SearchAPIKey authenticates against the search service.
	SearchAPIKey string
	// AnalysisTimeout bounds one analysis call. The analysis model may
	// take minutes on large prompts.
	AnalysisTimeout time.Duration
	// SearchTimeout bounds one search call.
	SearchTimeout time.Duration
}

// Client is the AI gateway.
type Client struct {
	cfg            Config
	analysisClient *http.Client
	searchClient   *http.Client
	log            zerolog.Logger
}

// NewClient creates a new AI gateway.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.AnalysisTimeout == 0 {
		cfg.AnalysisTimeout = 10 * time.Minute
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 3 * time.Minute
	}
	return &Client{
		cfg:            cfg,
		analysisClient: &http.Client{Timeout: cfg.AnalysisTimeout},
		searchClient:   &http.Client{Timeout: cfg.SearchTimeout},
		log:            log.With().Str("client", "ai").Logger(),
	}
}

// generateRequest is the analysis model request body.
type generateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		NumPredict int `json:"num_predict,omitempty"`
	} `json:"options,omitempty"`
}

// generateResponse is the analysis model response body.
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Call sends a prompt to the analysis model and returns the raw textual
// completion. No structural parsing occurs here.
func (c *Client) Call(ctx context.Context, prompt, model string, maxTokens int) (string, error) {
	reqBody := generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	}
	reqBody.Options.NumPredict = maxTokens

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.AnalysisURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.log.Info().Str("model", model).Int("prompt_len", len(prompt)).Msg("Calling analysis model")

	resp, err := c.analysisClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("analysis call returned status %d: %s", resp.StatusCode, string(b))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode analysis response: %w", err)
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("analysis model error: %s", genResp.Error)
	}

	c.log.Info().
		Str("model", model).
		Dur("took", time.Since(start)).
		Int("response_len", len(genResp.Response)).
		Msg("Analysis model responded")

	return genResp.Response, nil
}

// SearchOptions tunes a search-model call.
type SearchOptions struct {
	Model     string
	MaxTokens int
	XSearch   bool
	WebSearch bool
}

// SearchResult carries the search model's raw text plus its citations.
type SearchResult struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchSource struct {
	Type string `json:"type"`
}

type searchParameters struct {
	Mode    string         `json:"mode"`
	Sources []searchSource `json:"sources,omitempty"`
}

// chatRequest is the search model request body.
type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []chatMessage     `json:"messages"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	SearchParameters *searchParameters `json:"search_parameters,omitempty"`
}

// chatResponse is the search model response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations,omitempty"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CallWithSearch sends a prompt to the sentiment/discovery model with live
// search enabled and returns the text plus any citations.
func (c *Client) CallWithSearch(ctx context.Context, prompt string, opts SearchOptions) (*SearchResult, error) {
	var sources []searchSource
	if opts.XSearch {
		sources = append(sources, searchSource{Type: "x"})
	}
	if opts.WebSearch {
		sources = append(sources, searchSource{Type: "web"})
	}

	reqBody := chatRequest{
		Model:     opts.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: opts.MaxTokens,
	}
	if len(sources) > 0 {
		reqBody.SearchParameters = &searchParameters{Mode: "auto", Sources: sources}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.SearchURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.SearchAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.SearchAPIKey)
	}

	start := time.Now()
	c.log.Info().Str("model", opts.Model).Msg("Calling search model")

	resp, err := c.searchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search call returned status %d: %s", resp.StatusCode, string(b))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("search model error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("search model returned no choices")
	}

	c.log.Info().
		Str("model", opts.Model).
		Dur("took", time.Since(start)).
		Int("citations", len(chatResp.Citations)).
		Msg("Search model responded")

	return &SearchResult{
		Text:      chatResp.Choices[0].Message.Content,
		Citations: chatResp.Citations,
	}, nil
}
