package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LLMConfig configures the chat-completions assessor.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible server, without the /v1 suffix.
	BaseURL string
	APIKey  string
	Model   string

	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *LLMConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// LLMAssessor scores changes through an OpenAI-compatible chat endpoint.
type LLMAssessor struct {
	cfg    LLMConfig
	client *http.Client
}

// NewLLMAssessor creates an assessor. BaseURL and Model are required.
func NewLLMAssessor(cfg LLMConfig) (*LLMAssessor, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("classify: llm base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("classify: llm model is required")
	}
	cfg.defaults()
	return &LLMAssessor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

const systemPrompt = `You review changes to vendor trust pages (privacy policies,
terms of service, AI/data-usage statements) on behalf of a security team.
Given the removed and added lines of a change, assess how much it affects
user data rights, AI training usage, data sharing, or content ownership.

Respond with exactly three lines:
SCORE: low|medium|high
SUMMARY: one sentence describing the change
REASONING: one or two sentences explaining the score`

// Assess sends the change to the model and parses the structured verdict.
func (a *LLMAssessor) Assess(ctx context.Context, in Input) (*Verdict, error) {
	req := chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(in)},
		},
		MaxTokens:   400,
		Temperature: 0.1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm status %d: %s", resp.StatusCode, string(b))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	a.cfg.Logger.Debug("classifier: llm verdict received",
		"page", in.PageURL, "duration", time.Since(start),
		"tokens", chat.Usage.TotalTokens)

	return parseVerdict(chat.Choices[0].Message.Content)
}

func buildPrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Vendor: %s\nPage: %s (%s)\nChanged lines: %d\n",
		in.VendorName, in.PageLabel, in.PageURL, in.ChangedLines)
	if len(in.Signals) > 0 {
		fmt.Fprintf(&sb, "Flagged terms: %s\n", strings.Join(in.Signals, ", "))
	}
	sb.WriteString("\nREMOVED:\n")
	if in.RemovedExcerpt == "" {
		sb.WriteString("(nothing)\n")
	} else {
		sb.WriteString(in.RemovedExcerpt + "\n")
	}
	sb.WriteString("\nADDED:\n")
	if in.AddedExcerpt == "" {
		sb.WriteString("(nothing)\n")
	} else {
		sb.WriteString(in.AddedExcerpt + "\n")
	}
	return sb.String()
}

// parseVerdict extracts the SCORE/SUMMARY/REASONING lines. A missing or
// invalid score is an error so the caller can fall back to the heuristic.
func parseVerdict(content string) (*Verdict, error) {
	v := &Verdict{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SCORE:"):
			v.Score = Score(strings.ToLower(strings.TrimSpace(line[len("SCORE:"):])))
		case strings.HasPrefix(upper, "SUMMARY:"):
			v.Summary = strings.TrimSpace(line[len("SUMMARY:"):])
		case strings.HasPrefix(upper, "REASONING:"):
			v.Reasoning = strings.TrimSpace(line[len("REASONING:"):])
		}
	}
	if !v.Score.Valid() {
		return nil, fmt.Errorf("llm verdict missing valid score: %q", content)
	}
	if v.Summary == "" {
		v.Summary = "Change detected; see diff for details."
	}
	return v, nil
}
