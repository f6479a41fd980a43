package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/harun/pymolagent/pkg/capability"
)

// syntheticCallPrefix marks call IDs minted locally for function calls that
// arrived without one. They are not sent back to the API.
const syntheticCallPrefix = "gemini-call-"

type geminiModelsClient interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements LLMProvider for Google Gemini
type GeminiProvider struct {
	models geminiModelsClient
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("new gemini provider: missing api key")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}
	if client == nil || client.Models == nil {
		return nil, fmt.Errorf("new gemini client: models client is nil")
	}

	return &GeminiProvider{models: client.Models}, nil
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return "gemini"
}

// Call makes an API call to Google Gemini
func (p *GeminiProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	contents, err := geminiContents(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("gemini map request: %w", err)
	}

	temperature := float32(request.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if request.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: request.SystemPrompt}},
		}
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if len(request.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(request.Tools)}}
	}

	response, err := p.models.GenerateContent(ctx, request.Model, contents, config)
	if err != nil {
		return nil, err
	}
	return geminiResponse(response)
}

func geminiContents(history []AgentMessage) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history))
	var pending *genai.Content

	flush := func() {
		if pending != nil {
			contents = append(contents, pending)
			pending = nil
		}
	}

	for index, msg := range history {
		switch msg.Role {
		case "user":
			flush()
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case "assistant":
			flush()
			parts := []*genai.Part{}
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   wireCallID(tc.ID),
						Name: tc.Name,
						Args: tc.Parameters,
					},
					ThoughtSignature: tc.ThoughtSignature,
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: parts,
			})
		case "tool":
			if pending == nil {
				pending = &genai.Content{Role: string(genai.RoleUser)}
			}
			pending.Parts = append(pending.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       wireCallID(msg.ToolCallID),
					Name:     msg.ToolName,
					Response: toolResponseMap(msg.Content),
				},
			})
		default:
			return nil, fmt.Errorf("messages[%d] role: unsupported role %q", index, msg.Role)
		}
	}
	flush()

	if len(contents) == 0 {
		return nil, fmt.Errorf("missing non-system messages")
	}
	return contents, nil
}

func geminiDeclarations(specs []capability.Spec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 string(spec.Kind),
			Description:          spec.Description,
			ParametersJsonSchema: stripAdditionalProperties(spec.Schema),
		})
	}
	return decls
}

// stripAdditionalProperties returns a copy of schema without the
// additionalProperties keyword, which the Gemini API rejects.
func stripAdditionalProperties(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for key, value := range schema {
		if key == "additionalProperties" {
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			out[key] = stripAdditionalProperties(v)
		default:
			out[key] = v
		}
	}
	return out
}

func geminiResponse(response *genai.GenerateContentResponse) (*LLMResponse, error) {
	if response == nil {
		return nil, fmt.Errorf("gemini: empty response")
	}
	if len(response.Candidates) == 0 {
		if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini: prompt blocked: %s", response.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: no candidates returned")
	}

	var content strings.Builder
	toolCalls := []ToolCall{}

	candidate := response.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				content.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("%s%d", syntheticCallPrefix, len(toolCalls))
				}
				toolCalls = append(toolCalls, ToolCall{
					ID:               id,
					Name:             part.FunctionCall.Name,
					Parameters:       part.FunctionCall.Args,
					ThoughtSignature: part.ThoughtSignature,
				})
			}
		}
	}

	result := &LLMResponse{
		Content:   content.String(),
		ToolCalls: toolCalls,
	}
	if response.UsageMetadata != nil {
		result.Usage = &TokenUsage{
			InputTokens:  int(response.UsageMetadata.PromptTokenCount),
			OutputTokens: int(response.UsageMetadata.CandidatesTokenCount),
		}
	}
	return result, nil
}

func wireCallID(id string) string {
	if strings.HasPrefix(id, syntheticCallPrefix) {
		return ""
	}
	return id
}

// toolResponseMap decodes a tool message back into an object. Non-object
// content is wrapped under "output".
func toolResponseMap(content string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err == nil && out != nil {
		return out
	}
	return map[string]any{"output": content}
}
