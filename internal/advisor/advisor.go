// Package advisor relays chat conversations to a hosted Gemini model primed
// to advise on selling or recycling waste.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/config"
)

const (
	Preamble = "You are EcoAdvisor, a concise assistant helping users decide whether to sell or recycle waste.\n" +
		"Ask brief clarifying questions only when essential. Prioritize safety and local regulations.\n" +
		"When useful, suggest: (1) recycling steps, (2) marketplaces to sell, (3) price/condition factors, (4) environmental impact."

	FallbackReply = "Sorry, I couldn't generate a response."

	temperature     = 0.4
	maxOutputTokens = 512
	maxMessages     = 50
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type Client struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg config.AdvisorConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Reply sends the preamble followed by messages and returns the model's
// first candidate, or FallbackReply when the model returned no text.
func (c *Client) Reply(ctx context.Context, messages []Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("advisor API key is not configured: %w", apperr.ErrUnavailable)
	}

	body, err := buildRequest(messages)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode advisor request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.External("advisor", scrubKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.External("advisor", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.External("advisor", fmt.Errorf("decode response: %w", err))
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 ||
		strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text) == "" {
		return FallbackReply, nil
	}

	return out.Candidates[0].Content.Parts[0].Text, nil
}

// buildRequest maps chat roles onto Gemini's: assistant turns become "model".
func buildRequest(messages []Message) (generateRequest, error) {
	if len(messages) == 0 {
		return generateRequest{}, apperr.Validation("messages are required")
	}
	if len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}

	contents := make([]content, 0, len(messages)+1)
	contents = append(contents, content{Role: "user", Parts: []part{{Text: Preamble}}})
	for i, m := range messages {
		var role string
		switch m.Role {
		case "user":
			role = "user"
		case "assistant", "model":
			role = "model"
		default:
			return generateRequest{}, apperr.Validation("message %d has unknown role %q", i, m.Role)
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	return generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	}, nil
}

// scrubKey keeps the API key, which travels in the query string, out of
// transport errors.
func scrubKey(err error, key string) error {
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
}
