package llm

import (
	"context"

	acts "github.com/dshills/acts-go"
)

// Uses is the package identifier acts.llm.chat acts register under.
const Uses = "acts.llm.chat"

// Handler implements acts.PackageHandler for acts.llm.chat, routing to one
// of the three configured providers by inputs.provider.
//
// Inputs: provider ("openai"/"anthropic"/"google"), messages
// ([]any of {role, content}), tools (optional, same shape as ToolSpec).
// Outputs: text, tool_calls ([]any of {name, input}).
type Handler struct {
	providers map[string]ChatModel
}

// NewHandler builds a Handler over the given provider name -> ChatModel
// map; callers construct the concrete providers (NewOpenAIModel etc.) with
// whatever API keys and model names their deployment uses.
func NewHandler(providers map[string]ChatModel) *Handler {
	return &Handler{providers: providers}
}

func (h *Handler) Uses() string { return Uses }

func (h *Handler) Call(ctx context.Context, sctx *acts.Context, inputs map[string]any) acts.ActResult {
	provider, _ := inputs["provider"].(string)
	model, ok := h.providers[provider]
	if !ok {
		return acts.Fail(acts.NewError(acts.ErrAction, "", "acts.llm.chat: unknown provider "+provider))
	}

	messages, err := decodeMessages(inputs["messages"])
	if err != nil {
		return acts.Fail(acts.Wrap(acts.ErrAction, "", err))
	}
	tools := decodeTools(inputs["tools"])

	out, err := model.Chat(ctx, messages, tools)
	if err != nil {
		return acts.Fail(acts.Wrap(acts.ErrAction, "", err))
	}

	calls := make([]any, len(out.ToolCalls))
	for i, c := range out.ToolCalls {
		calls[i] = map[string]any{"name": c.Name, "input": c.Input}
	}
	return acts.Complete(map[string]any{"text": out.Text, "tool_calls": calls})
}

func decodeMessages(raw any) ([]Message, error) {
	list, _ := raw.([]any)
	out := make([]Message, 0, len(list))
	for _, item := range list {
		m, _ := item.(map[string]any)
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		out = append(out, Message{Role: role, Content: content})
	}
	return out, nil
}

func decodeTools(raw any) []ToolSpec {
	list, _ := raw.([]any)
	out := make([]ToolSpec, 0, len(list))
	for _, item := range list {
		t, _ := item.(map[string]any)
		name, _ := t["name"].(string)
		desc, _ := t["description"].(string)
		schema, _ := t["schema"].(map[string]any)
		out = append(out, ToolSpec{Name: name, Description: desc, Schema: schema})
	}
	return out
}
