package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/curalink/voicebridge/pkg/conversation"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/llm"
	"github.com/curalink/voicebridge/pkg/resilience"
)

type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	UseCircuitBreaker bool
	CircuitThreshold  int
	CircuitCooldown   time.Duration
}

// Adapter streams chat completions over the OpenAI SSE protocol.
type Adapter struct {
	cfg     Config
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
	if cfg.UseCircuitBreaker {
		a.breaker = resilience.NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitCooldown)
	}
	return a
}

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	if a.breaker != nil && !a.breaker.Allow() {
		return nil, errorsx.New(errorsx.ReasonConnectFailed, "completion vendor circuit open")
	}
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConnectFailed)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", body)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConnectFailed)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConnectFailed)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		rateErr := resilience.RateLimitError{Provider: "openai", Message: string(payload)}
		if a.breaker != nil {
			a.breaker.OnError(rateErr)
		}
		return nil, errorsx.Wrap(rateErr, errorsx.ReasonConnectFailed)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errorsx.New(errorsx.ReasonAuthFailed, string(payload))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errorsx.New(errorsx.ReasonConnectFailed, string(payload))
	}

	out := make(chan llm.Delta, 128)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				if a.breaker != nil {
					a.breaker.OnSuccess()
				}
				return
			}
			var chunk map[string]any
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			choices, _ := chunk["choices"].([]any)
			if len(choices) == 0 {
				continue
			}
			first, _ := choices[0].(map[string]any)
			delta, _ := first["delta"].(map[string]any)
			if text, _ := delta["content"].(string); text != "" {
				select {
				case <-ctx.Done():
					return
				case out <- llm.Delta{Text: text}:
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- llm.Delta{Err: errorsx.Wrap(err, errorsx.ReasonStreamFailed)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (a *Adapter) buildRequest(req llm.Request) (*bytes.Buffer, error) {
	messages := make([]map[string]any, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	for _, turn := range req.Turns {
		role := turn.Role
		if role != conversation.RoleAssistant {
			role = conversation.RoleUser
		}
		messages = append(messages, map[string]any{"role": role, "content": turn.Content})
	}
	payload := map[string]any{
		"model":    a.cfg.Model,
		"stream":   true,
		"messages": messages,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}
