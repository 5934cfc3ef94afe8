package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Generator produces the result a finished job hands out from its end
// endpoint.
type Generator interface {
	Name() string
	Generate(ctx context.Context, kind string, payload json.RawMessage) (json.RawMessage, error)
}

// EchoGenerator returns the payload it was given.
type EchoGenerator struct{}

func (EchoGenerator) Name() string { return "echo" }

func (EchoGenerator) Generate(_ context.Context, kind string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Kind  string          `json:"kind"`
		Input json.RawMessage `json:"input"`
	}{Kind: kind, Input: payload})
}

func prompt(kind string, payload json.RawMessage) string {
	return fmt.Sprintf("Produce the %s content for the following request. Answer with a single JSON document and nothing else.\n\n%s", kind, string(payload))
}

// asJSON keeps model output that is already JSON and quotes anything else.
func asJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("model returned no content")
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	return json.Marshal(text)
}

// OpenAIGenerator asks an OpenAI chat model for the result.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required for the openai generator")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: model}, nil
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, kind string, payload json.RawMessage) (json.RawMessage, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are the content engine of a marketing website builder."},
			{Role: openai.ChatMessageRoleUser, Content: prompt(kind, payload)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error generating %s: %w", kind, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("OpenAI API returned no choices")
	}
	log.Debugf("OpenAI generated %s (prompt=%d completion=%d tokens)", kind, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return asJSON(resp.Choices[0].Message.Content)
}

// GeminiGenerator asks a Gemini model for the result.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required for the gemini generator")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, kind string, payload json.RawMessage) (json.RawMessage, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt(kind, payload)))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error generating %s: %w", kind, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("Gemini API returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return asJSON(sb.String())
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// NewGenerator builds the generator called name.
func NewGenerator(ctx context.Context, name string, keys GeneratorKeys) (Generator, error) {
	switch name {
	case "", "echo":
		return EchoGenerator{}, nil
	case "openai":
		return NewOpenAIGenerator(keys.OpenaiApiKey, keys.OpenaiModel)
	case "gemini":
		return NewGeminiGenerator(ctx, keys.GoogleApiKey, keys.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

// GeneratorKeys carries provider credentials and model names.
type GeneratorKeys struct {
	OpenaiApiKey string
	OpenaiModel  string
	GoogleApiKey string
	GeminiModel  string
}
