package llmproxy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferRoute_PrefixesRouteCorrectly(t *testing.T) {
	assert.Equal(t, RouteSource, InferRoute("claude-opus-4"))
	assert.Equal(t, RouteTarget, InferRoute("gpt-4o"))
	assert.Equal(t, RouteTarget, InferRoute("o3-mini"))
	assert.Equal(t, RouteTarget, InferRoute("o4-mini"))
	assert.Equal(t, RouteSource, InferRoute("some-other-model"))
}

func TestToTargetRequest_FlattensSystemAndMessages(t *testing.T) {
	req := SourceRequest{
		Model:  "gpt-4o",
		System: json.RawMessage(`"be concise"`),
		Messages: []SourceMessage{
			{Role: "user", Content: json.RawMessage(`"hello"`)},
			{Role: "assistant", Content: json.RawMessage(`[{"type":"text","text":"hi there"}]`)},
		},
	}

	out := ToTargetRequest(req)

	assert.Equal(t, "be concise", out.Instructions)
	require.Len(t, out.Input, 2)
	assert.Equal(t, "user", out.Input[0].Role)
	assert.Equal(t, PartInputText, out.Input[0].Content[0].Type)
	assert.Equal(t, "hello", out.Input[0].Content[0].Text)
	assert.Equal(t, "assistant", out.Input[1].Role)
	assert.Equal(t, PartOutputText, out.Input[1].Content[0].Type)
}

func TestToTargetRequest_ToolUseAndToolResult(t *testing.T) {
	req := SourceRequest{
		Model: "gpt-4o",
		Messages: []SourceMessage{
			{Role: "assistant", Content: json.RawMessage(`[{"type":"tool_use","id":"call_1","name":"search","input":{"q":"go"}}]`)},
			{Role: "user", Content: json.RawMessage(`[{"type":"tool_result","tool_use_id":"call_1","content":"result text"}]`)},
		},
		Tools: []SourceTool{
			{Name: "search", Description: "web search", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}

	out := ToTargetRequest(req)

	require.Len(t, out.Input, 2)
	assert.Equal(t, ItemFunctionCall, out.Input[0].Type)
	assert.Equal(t, "call_1", out.Input[0].CallID)
	assert.JSONEq(t, `{"q":"go"}`, out.Input[0].Arguments)
	assert.Equal(t, ItemFunctionCallOutput, out.Input[1].Type)
	assert.Equal(t, "call_1", out.Input[1].CallID)
	assert.Equal(t, "result text", out.Input[1].Output)

	require.Len(t, out.Tools, 1)
	assert.Equal(t, "function", out.Tools[0].Type)
	assert.Equal(t, "search", out.Tools[0].Name)
}

func TestFromTargetResponse_TextOnlyIsEndTurn(t *testing.T) {
	resp := TargetResponse{
		Output: []TargetItem{
			{Content: []TargetContent{{Type: PartOutputText, Text: "hello"}}},
		},
		Usage: Usage{InputTokens: 10, OutputTokens: 5},
	}

	out := FromTargetResponse(resp)

	assert.Equal(t, StopEndTurn, out.StopReason)
	require.Len(t, out.Content, 1)
	assert.Equal(t, BlockText, out.Content[0].Type)
	assert.Equal(t, "hello", out.Content[0].Text)
	assert.EqualValues(t, 10, out.Usage.InputTokens)
}

func TestFromTargetResponse_FunctionCallIsToolUse(t *testing.T) {
	resp := TargetResponse{
		Output: []TargetItem{
			{Type: ItemFunctionCall, CallID: "call_2", Name: "search", Arguments: `{"q":"x"}`},
		},
	}

	out := FromTargetResponse(resp)

	assert.Equal(t, StopToolUse, out.StopReason)
	require.Len(t, out.Content, 1)
	assert.Equal(t, BlockToolUse, out.Content[0].Type)
	assert.Equal(t, "call_2", out.Content[0].ID)
	assert.JSONEq(t, `{"q":"x"}`, string(out.Content[0].Input))
}

func TestFromTargetResponse_UnparsableArgumentsFallBackToEmptyObject(t *testing.T) {
	resp := TargetResponse{
		Output: []TargetItem{
			{Type: ItemFunctionCall, CallID: "call_3", Name: "search", Arguments: `not json`},
		},
	}

	out := FromTargetResponse(resp)
	assert.JSONEq(t, `{}`, string(out.Content[0].Input))
}

func TestFromTargetResponse_SkipsReasoningItems(t *testing.T) {
	resp := TargetResponse{
		Output: []TargetItem{
			{Type: ItemReasoning},
			{Content: []TargetContent{{Type: PartOutputText, Text: "final"}}},
		},
	}

	out := FromTargetResponse(resp)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "final", out.Content[0].Text)
}
