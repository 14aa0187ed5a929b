package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/oracle"
)

// Oracle answers decision requests by prompting a language model and
// returning the JSON object found in its reply. Shape validation happens in
// oracle.Ask.
type Oracle struct {
	client *Client
}

// NewOracle creates an oracle on top of client.
func NewOracle(client *Client) *Oracle {
	return &Oracle{client: client}
}

// FromConfig builds the completer named by cfg.Provider.
func FromConfig(cfg config.OracleConfig) (*Oracle, error) {
	var c Completer
	switch cfg.Provider {
	case "anthropic":
		c = NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "openai":
		c = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("llm provider %q not supported", cfg.Provider)
	}
	return NewOracle(NewClient(c, cfg.RatePerMinute, cfg.MaxTokens)), nil
}

// Decide implements oracle.Oracle.
func (o *Oracle) Decide(ctx context.Context, req oracle.Request) ([]byte, error) {
	p, ok := prompts[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", oracle.ErrUnsupported, req.Kind)
	}
	user, err := buildUserPrompt(req, p)
	if err != nil {
		return nil, err
	}
	response, err := o.client.Complete(ctx, systemPrompt+"\n\n"+p.task, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Kind, err)
	}
	return extractJSON(response)
}

func buildUserPrompt(req oracle.Request, p prompt) (string, error) {
	ctxJSON, err := json.MarshalIndent(req.Context, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s context: %w", req.Kind, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Month %d.\n\nSituation:\n%s\n\n", req.Month, ctxJSON)
	b.WriteString("Respond ONLY with a single JSON object of this shape:\n")
	b.WriteString(p.schema)
	return b.String(), nil
}

// extractJSON returns the outermost JSON object in response.
func extractJSON(response string) ([]byte, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	raw := []byte(response[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("malformed JSON object in response")
	}
	return raw, nil
}
