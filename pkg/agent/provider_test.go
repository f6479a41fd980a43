package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/harun/pymolagent/pkg/capability"
)

type mockModels struct {
	mock.Mock
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func toolConversation() []AgentMessage {
	return []AgentMessage{
		{Role: "user", Content: "load and color"},
		{Role: "assistant", Content: "Working on it.", ToolCalls: []ToolCall{
			{ID: "a", Name: "load_molecule", Parameters: map[string]interface{}{"file_path": "1ubq.pdb"}},
			{ID: syntheticCallPrefix + "1", Name: "color_molecule", Parameters: map[string]interface{}{"object_name": "1ubq", "color": "red"}},
		}},
		{Role: "tool", ToolCallID: "a", ToolName: "load_molecule", Content: `{"success":true,"output":"ok"}`},
		{Role: "tool", ToolCallID: syntheticCallPrefix + "1", ToolName: "color_molecule", Content: `{"success":false,"error":"no such object"}`},
	}
}

func TestFactory_UnsupportedProvider(t *testing.T) {
	_, err := (&ProviderFactory{}).NewProvider(AuthProfile{Provider: "mistral"})
	assert.EqualError(t, err, "unsupported provider: mistral")
}

func TestFactory_GeminiRequiresKey(t *testing.T) {
	_, err := (&ProviderFactory{}).NewProvider(AuthProfile{Provider: "gemini"})
	assert.Error(t, err)
}

func TestGeminiContents_MergesToolResponses(t *testing.T) {
	contents, err := geminiContents(toolConversation())
	require.NoError(t, err)
	require.Len(t, contents, 3)

	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, "load and color", contents[0].Parts[0].Text)

	model := contents[1]
	assert.Equal(t, string(genai.RoleModel), model.Role)
	require.Len(t, model.Parts, 3)
	assert.Equal(t, "a", model.Parts[1].FunctionCall.ID)
	assert.Empty(t, model.Parts[2].FunctionCall.ID)

	responses := contents[2]
	assert.Equal(t, string(genai.RoleUser), responses.Role)
	require.Len(t, responses.Parts, 2)
	assert.Equal(t, "load_molecule", responses.Parts[0].FunctionResponse.Name)
	assert.Equal(t, true, responses.Parts[0].FunctionResponse.Response["success"])
	assert.Equal(t, "no such object", responses.Parts[1].FunctionResponse.Response["error"])
}

func TestGeminiContents_RejectsUnknownRole(t *testing.T) {
	_, err := geminiContents([]AgentMessage{{Role: "system", Content: "x"}})
	assert.Error(t, err)

	_, err = geminiContents(nil)
	assert.Error(t, err)
}

func TestStripAdditionalProperties(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"annotations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
				},
			},
		},
	}

	out := stripAdditionalProperties(schema)
	assert.NotContains(t, out, "additionalProperties")
	items := out["properties"].(map[string]any)["annotations"].(map[string]any)["items"].(map[string]any)
	assert.NotContains(t, items, "additionalProperties")
	assert.Contains(t, schema, "additionalProperties")
}

func TestGeminiProvider_Call(t *testing.T) {
	models := &mockModels{}
	models.On("GenerateContent", mock.Anything, "gemini-2.5-pro", mock.Anything,
		mock.MatchedBy(func(cfg *genai.GenerateContentConfig) bool {
			return cfg.Temperature != nil && *cfg.Temperature == float32(0.1) &&
				cfg.MaxOutputTokens == 8192 &&
				cfg.SystemInstruction != nil && cfg.SystemInstruction.Parts[0].Text == "be brief" &&
				len(cfg.Tools) == 1 && len(cfg.Tools[0].FunctionDeclarations) == 1 &&
				cfg.Tools[0].FunctionDeclarations[0].Name == "echo_message"
		}),
	).Return(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Calling echo."},
				{FunctionCall: &genai.FunctionCall{Name: "echo_message", Args: map[string]any{"message": "hi"}}, ThoughtSignature: []byte("sig")},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 4},
	}, nil).Once()

	spec, ok := capability.SpecFor(capability.EchoMessage)
	require.True(t, ok)

	p := &GeminiProvider{models: models}
	resp, err := p.Call(context.Background(), LLMRequest{
		Model:        "gemini-2.5-pro",
		Messages:     []AgentMessage{{Role: "user", Content: "echo hi"}},
		Tools:        []capability.Spec{spec},
		Temperature:  0.1,
		MaxTokens:    8192,
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)
	models.AssertExpectations(t)

	assert.Equal(t, "Calling echo.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, syntheticCallPrefix+"0", resp.ToolCalls[0].ID)
	assert.Equal(t, "echo_message", resp.ToolCalls[0].Name)
	assert.Equal(t, []byte("sig"), resp.ToolCalls[0].ThoughtSignature)
	assert.Equal(t, &TokenUsage{InputTokens: 12, OutputTokens: 4}, resp.Usage)
}

func TestGeminiProvider_Errors(t *testing.T) {
	models := &mockModels{}
	models.On("GenerateContent", mock.Anything, "blocked", mock.Anything, mock.Anything).
		Return(&genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}, nil)
	models.On("GenerateContent", mock.Anything, "down", mock.Anything, mock.Anything).
		Return(nil, errors.New("503 UNAVAILABLE"))

	p := &GeminiProvider{models: models}
	msgs := []AgentMessage{{Role: "user", Content: "x"}}

	_, err := p.Call(context.Background(), LLMRequest{Model: "blocked", Messages: msgs})
	assert.ErrorContains(t, err, "prompt blocked")

	_, err = p.Call(context.Background(), LLMRequest{Model: "down", Messages: msgs})
	assert.True(t, IsRetryableError(err))
}

func TestAnthropicMessages_MergesToolResults(t *testing.T) {
	msgs := anthropicMessages(toolConversation())
	require.Len(t, msgs, 3)
	assert.Len(t, msgs[1].Content, 3)
	assert.Len(t, msgs[2].Content, 2)
}

func TestAnthropicTools(t *testing.T) {
	spec, ok := capability.SpecFor(capability.ColorMolecule)
	require.True(t, ok)

	tools := anthropicTools([]capability.Spec{spec})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "color_molecule", tools[0].OfTool.Name)
	assert.ElementsMatch(t, []string{"object_name", "color"}, tools[0].OfTool.InputSchema.Required)
}

func TestOpenAIMessages(t *testing.T) {
	msgs, err := openAIMessages("system", toolConversation())
	require.NoError(t, err)
	// system, user, assistant, two tool messages
	assert.Len(t, msgs, 5)
}

func TestToolResultFailed(t *testing.T) {
	assert.True(t, toolResultFailed(`{"success":false,"error":"x"}`))
	assert.False(t, toolResultFailed(`{"success":true}`))
	assert.False(t, toolResultFailed("plain text"))
}
