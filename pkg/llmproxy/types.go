// Package llmproxy implements the translating LLM gateway (C7, spec.md
// §4.7): a single HTTP endpoint creatures call as if it were one provider,
// which inspects the model, optionally translates between two wire
// formats, forwards upstream, records usage, and enforces budget.
package llmproxy

import "encoding/json"

// ContentBlock is a tagged union over the source protocol's content kinds:
// text, tool_use, tool_result.
type ContentBlock struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`
	Content    string          `json:"content,omitempty"`
}

// Block kinds (source protocol).
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// SourceMessage is one turn in the source (Anthropic-style) protocol.
// Content may be a bare string or a []ContentBlock; as a json.RawMessage it
// keeps whichever the caller sent for re-marshaling.
type SourceMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Blocks parses Content into a normalized []ContentBlock regardless of
// whether the caller sent a string or an array.
func (m SourceMessage) Blocks() []ContentBlock {
	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		return []ContentBlock{{Type: BlockText, Text: asString}}
	}
	var blocks []ContentBlock
	_ = json.Unmarshal(m.Content, &blocks)
	return blocks
}

// SourceTool is the source protocol's tool declaration.
type SourceTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// SourceRequest is the chat-style request every creature speaks
// (spec.md §4.7).
type SourceRequest struct {
	Model     string          `json:"model"`
	Messages  []SourceMessage `json:"messages"`
	System    json.RawMessage `json:"system,omitempty"`
	Tools     []SourceTool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// SystemText flattens System (string or []{type:"text",text}) to plain text.
func (r SourceRequest) SystemText() string {
	if len(r.System) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(r.System, &asString); err == nil {
		return asString
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(r.System, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return ""
}

// Usage is the token accounting block common to both protocols.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// SourceResponse is the source protocol's response shape.
type SourceResponse struct {
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Stop reasons (source protocol).
const (
	StopEndTurn  = "end_turn"
	StopToolUse  = "tool_use"
)

// --- Target (response-style) protocol ---

// TargetItem is one flat input/output item: a message, a function_call, or
// a function_call_output.
type TargetItem struct {
	Type    string          `json:"type,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content []TargetContent `json:"content,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output  string          `json:"output,omitempty"`
}

// Target item type tags.
const (
	ItemFunctionCall       = "function_call"
	ItemFunctionCallOutput = "function_call_output"
	ItemReasoning          = "reasoning"
)

// TargetContent is one part of a target message item.
type TargetContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Target content part kinds.
const (
	PartInputText  = "input_text"
	PartOutputText = "output_text"
)

// TargetTool is the target protocol's tool declaration.
type TargetTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// TargetRequest is the flattened request sent to the secondary provider.
type TargetRequest struct {
	Model        string       `json:"model"`
	Instructions string       `json:"instructions,omitempty"`
	Input        []TargetItem `json:"input"`
	Tools        []TargetTool `json:"tools,omitempty"`
}

// TargetResponse is the secondary provider's response shape.
type TargetResponse struct {
	Output []TargetItem `json:"output"`
	Usage  Usage        `json:"usage"`
}
