package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tally/internal/command"
	apperrors "tally/internal/errors"
)

const systemPrompt = `You are a bookkeeping assistant. You help the user manage their
chart of accounts: categories (with types asset, liability, equity, revenue, cogs,
expense) and payees. When the user asks for changes, call submit_commands with the
commands to run; the user will review and confirm them before anything happens.
Refer to existing categories and payees by their exact names. If the request is
unclear or needs no changes, just answer in text.`

// submitCommandsSchema describes the single tool exposed to the model. The
// shape mirrors command.Request; anything the model sends is re-validated
// by the pipeline.
var submitCommandsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "commands": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "action": {
            "type": "string",
            "enum": ["create_category", "rename_category", "retype_category",
                     "move_category", "delete_category", "merge_categories",
                     "find_category", "check_category_usage",
                     "create_payee", "rename_payee", "delete_payee", "find_payee"]
          },
          "name": {"type": "string"},
          "type": {"type": "string", "enum": ["asset", "liability", "equity", "revenue", "cogs", "expense"]},
          "new_name": {"type": "string"},
          "parent": {"type": "string"},
          "to_root": {"type": "boolean"},
          "target": {"type": "string"},
          "sources": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["action"]
      }
    },
    "reply": {"type": "string"}
  },
  "required": ["commands"]
}`)

// OpenAIGenerator implements Generator over the OpenAI chat API with a
// single function tool.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *zap.SugaredLogger
}

// NewOpenAIGenerator creates a generator. Model defaults to gpt-4o-mini
// when empty.
func NewOpenAIGenerator(apiKey, model string, log *zap.SugaredLogger) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not configured")
	}
	if model == "" {
		model = openai.GPT4oMini
		log.Warnw("OPENAI_MODEL not set, using default", "model", model)
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}, nil
}

// Generate runs one chat completion over the conversation and extracts
// the proposed commands from the tool call, if any.
func (g *OpenAIGenerator) Generate(ctx context.Context, conversation []Message, snapshot Snapshot) (*Result, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(conversation)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	if ctxMsg := snapshotMessage(snapshot); ctxMsg != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: ctxMsg,
		})
	}
	for _, m := range conversation {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "submit_commands",
				Description: "Propose bookkeeping commands for the user to confirm.",
				Parameters:  submitCommandsSchema,
			},
		}},
	})
	if err != nil {
		g.log.Errorw("OpenAI chat completion failed", "error", err)
		return nil, apperrors.Wrap(apperrors.ErrGeneratorFailure, err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrGeneratorFailure, "Model returned no choices")
	}

	choice := resp.Choices[0].Message
	result := &Result{Reply: choice.Content}

	for _, call := range choice.ToolCalls {
		if call.Function.Name != "submit_commands" {
			g.log.Warnw("model called unknown tool", "tool", call.Function.Name)
			continue
		}
		var payload struct {
			Commands []command.Request `json:"commands"`
			Reply    string            `json:"reply"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &payload); err != nil {
			g.log.Errorw("failed to decode tool arguments", "error", err)
			return nil, apperrors.WithMessage(apperrors.ErrGeneratorFailure,
				"Model produced malformed commands")
		}
		result.Commands = append(result.Commands, payload.Commands...)
		if result.Reply == "" {
			result.Reply = payload.Reply
		}
	}

	if result.Reply == "" && len(result.Commands) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrGeneratorFailure, "Model returned an empty response")
	}
	return result, nil
}

func snapshotMessage(s Snapshot) string {
	if len(s.Categories) == 0 && len(s.Payees) == 0 {
		return ""
	}
	var b strings.Builder
	if len(s.Categories) > 0 {
		b.WriteString("Existing categories: ")
		b.WriteString(strings.Join(s.Categories, ", "))
		b.WriteString(".\n")
	}
	if len(s.Payees) > 0 {
		b.WriteString("Existing payees: ")
		b.WriteString(strings.Join(s.Payees, ", "))
		b.WriteString(".")
	}
	return b.String()
}
