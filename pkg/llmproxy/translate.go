package llmproxy

import (
	"encoding/json"
	"strings"
)

// InferRoute picks the upstream by model prefix (spec.md §4.7 "Provider
// inference"). Unrecognized defaults to source.
func InferRoute(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return RouteSource
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return RouteTarget
	default:
		return RouteSource
	}
}

// Upstream routes.
const (
	RouteSource = "source"
	RouteTarget = "target"
)

// ToTargetRequest implements spec.md §4.7's source->target request
// translation algorithm.
func ToTargetRequest(req SourceRequest) TargetRequest {
	out := TargetRequest{
		Model:        req.Model,
		Instructions: req.SystemText(),
	}

	for _, msg := range req.Messages {
		blocks := msg.Blocks()
		switch msg.Role {
		case "user":
			var parts []TargetContent
			for _, b := range blocks {
				switch b.Type {
				case BlockText:
					parts = append(parts, TargetContent{Type: PartInputText, Text: b.Text})
				case BlockToolResult:
					out.Input = append(out.Input, TargetItem{
						Type:   ItemFunctionCallOutput,
						CallID: b.ToolUseID,
						Output: b.Content,
					})
				}
			}
			if len(parts) > 0 {
				out.Input = append(out.Input, TargetItem{Role: "user", Content: parts})
			}
		case "assistant":
			var parts []TargetContent
			for _, b := range blocks {
				switch b.Type {
				case BlockText:
					parts = append(parts, TargetContent{Type: PartOutputText, Text: b.Text})
				case BlockToolUse:
					args := "{}"
					if len(b.Input) > 0 {
						args = string(b.Input)
					}
					out.Input = append(out.Input, TargetItem{
						Type:      ItemFunctionCall,
						CallID:    b.ID,
						Name:      b.Name,
						Arguments: args,
					})
				}
			}
			if len(parts) > 0 {
				out.Input = append(out.Input, TargetItem{Role: "assistant", Content: parts})
			}
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, TargetTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return out
}

// FromTargetResponse implements spec.md §4.7's target->source response
// translation algorithm. Unparsable arguments fall back to {}.
func FromTargetResponse(resp TargetResponse) SourceResponse {
	out := SourceResponse{Role: "assistant", Usage: resp.Usage}

	sawToolUse := false
	for _, item := range resp.Output {
		switch item.Type {
		case ItemReasoning:
			continue
		case ItemFunctionCall:
			var input json.RawMessage
			if json.Valid([]byte(item.Arguments)) {
				input = json.RawMessage(item.Arguments)
			} else {
				input = json.RawMessage("{}")
			}
			out.Content = append(out.Content, ContentBlock{
				Type:  BlockToolUse,
				ID:    item.CallID,
				Name:  item.Name,
				Input: input,
			})
			sawToolUse = true
		default:
			for _, part := range item.Content {
				if part.Type == PartOutputText {
					out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: part.Text})
				}
			}
		}
	}

	if sawToolUse {
		out.StopReason = StopToolUse
	} else {
		out.StopReason = StopEndTurn
	}
	return out
}
