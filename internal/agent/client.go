package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nutri-practice/internal/record"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
)

var (
	ErrUpstream          = errors.New("ai service request failed")
	ErrMalformedResponse = errors.New("ai service returned a malformed response")
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiClient talks to the Gemini generateContent REST API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

func NewGeminiClient(cfg Config, log zerolog.Logger) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		// Streams are bounded by the caller's context, not a client timeout.
		httpClient: &http.Client{},
		log:        log.With().Str("component", "gemini").Logger(),
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (c *GeminiClient) newRequest(ctx context.Context, method string, body generateRequest, query string) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:%s", c.baseURL, c.model, method)
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

func (c *GeminiClient) generate(ctx context.Context, body generateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, "generateContent", body, "")
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s - %s", ErrUpstream, resp.Status, strings.TrimSpace(string(respBody)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrMalformedResponse, err)
	}
	text := result.text()
	if text == "" {
		return "", fmt.Errorf("%w: no candidates in response", ErrMalformedResponse)
	}
	return text, nil
}

// Analyze estimates metabolic needs for profile.
func (c *GeminiClient) Analyze(ctx context.Context, profile record.PatientProfile) (record.NutritionalStats, error) {
	text, err := c.generate(ctx, jsonRequest(analysisPrompt(profile)))
	if err != nil {
		c.log.Error().Err(err).Msg("analysis request failed")
		return record.NutritionalStats{}, err
	}
	return parseStats(text)
}

// GeneratePlan drafts one day of meals. TotalCalories is recomputed from the
// items rather than taken from the model.
func (c *GeminiClient) GeneratePlan(ctx context.Context, profile record.PatientProfile, stats record.NutritionalStats) (record.DailyPlan, error) {
	text, err := c.generate(ctx, jsonRequest(planPrompt(profile, stats)))
	if err != nil {
		c.log.Error().Err(err).Msg("plan request failed")
		return record.DailyPlan{}, err
	}
	return parsePlan(text)
}

// ShoppingList returns a grocery list grouped by store section, as markdown
// text.
func (c *GeminiClient) ShoppingList(ctx context.Context, plan record.DailyPlan) (string, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	text, err := c.generate(ctx, generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: shoppingListPrompt(string(planJSON))}}}},
	})
	if err != nil {
		c.log.Error().Err(err).Msg("shopping list request failed")
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func jsonRequest(prompt string) generateRequest {
	return generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig:  &generationConfig{ResponseMimeType: "application/json"},
	}
}

// Turn is one prior chat message. Role is "user" or "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Chunk is one fragment of a streamed reply. A chunk with Err set is the
// last one sent.
type Chunk struct {
	Text string
	Err  error
}

// Chat sends message after history and streams the reply. The channel is
// closed when the reply ends, fails, or ctx is cancelled.
func (c *GeminiClient) Chat(ctx context.Context, message string, history []Turn) (<-chan Chunk, error) {
	contents := make([]content, 0, len(history)+1)
	for _, t := range history {
		role := t.Role
		if role != "model" {
			role = "user"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: message}}})

	req, err := c.newRequest(ctx, "streamGenerateContent", generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		Contents:          contents,
	}, "alt=sse")
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s - %s", ErrUpstream, resp.Status, strings.TrimSpace(string(body)))
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		send := func(ch Chunk) bool {
			select {
			case out <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			var event generateResponse
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				send(Chunk{Err: fmt.Errorf("%w: stream event: %v", ErrMalformedResponse, err)})
				return
			}
			if text := event.text(); text != "" {
				if !send(Chunk{Text: text}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("chat stream interrupted")
			send(Chunk{Err: fmt.Errorf("%w: %v", ErrUpstream, err)})
		}
	}()
	return out, nil
}
