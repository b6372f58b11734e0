package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

const (
	chatCompletionsPath = "/chat/completions"
	brevityInstruction  = "Keep the reply under 30 characters, casual and natural. Stay consistent with the conversation so far and answer in the language of the post."
)

// ChatConfig configures an OpenAI-compatible chat-completion endpoint.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// ChatCompletion calls an OpenAI-compatible chat-completion endpoint. Each
// Generate call makes at most one upstream request.
type ChatCompletion struct {
	client *resty.Client
	cfg    ChatConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewChatCompletion(cfg ChatConfig) *ChatCompletion {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 100
	}

	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         cfg.Timeout,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       30 * time.Second,
	}).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey)

	return &ChatCompletion{client: client, cfg: cfg}
}

func (c *ChatCompletion) Close() error {
	return c.client.Close()
}

func (c *ChatCompletion) Generate(ctx context.Context, p Prompt) (string, error) {
	res, err := c.client.R().
		WithContext(ctx).
		SetBody(chatRequest{
			Model:       c.cfg.Model,
			Messages:    buildMessages(p),
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		}).
		SetResult(&chatResponse{}).
		Post(chatCompletionsPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, res.StatusCode(), truncate(res.String(), 200))
	}

	out, ok := res.Result().(*chatResponse)
	if !ok || len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUpstream)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", ErrUpstream)
	}
	return text, nil
}

func buildMessages(p Prompt) []chatMessage {
	var user strings.Builder
	fmt.Fprintf(&user, "Someone watching the show posted this moment: %q.", p.PostBody)
	if p.Text != "" && p.Text != p.PostBody {
		fmt.Fprintf(&user, "\nThe latest comment is: %q.", p.Text)
	}
	for _, hint := range p.ImageHints {
		user.WriteString("\n")
		user.WriteString(hint)
	}
	if len(p.History) > 0 {
		user.WriteString("\n\nConversation so far:")
		for _, m := range p.History {
			fmt.Fprintf(&user, "\n%s: %s", m.Author, m.Text)
		}
	}
	fmt.Fprintf(&user, "\n\nReply to the moment or the latest comment as %s.", p.Persona.Name)

	return []chatMessage{
		{Role: "system", Content: p.Persona.SystemPrompt + "\n\n" + brevityInstruction},
		{Role: "user", Content: user.String()},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
