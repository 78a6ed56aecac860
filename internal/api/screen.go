// Package api screens Anthropic Messages API tool calls through the
// intervention gate.
package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/TheLazyLemur/pathscope/internal/core"
	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/TheLazyLemur/pathscope/internal/scope"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/pkg/errors"
)

// Screened is the gate outcome for one tool_use block.
type Screened struct {
	ToolUseID    string                `json:"toolUseID"`
	Decision     intervention.Decision `json:"decision"`
	InvalidInput string                `json:"invalidInput,omitempty"`
}

// Blocked reports whether the call must wait for a human.
func (s Screened) Blocked() bool {
	return s.InvalidInput != "" || s.Decision.Required
}

// ToolResult builds the error result returned to the model for a blocked call.
func (s Screened) ToolResult() anthropic.ContentBlockParamUnion {
	if s.InvalidInput != "" {
		return anthropic.NewToolResultBlock(s.ToolUseID, "Invalid input: "+s.InvalidInput, true)
	}
	return anthropic.NewToolResultBlock(s.ToolUseID, "Intervention required: "+s.Decision.Reason, true)
}

// ScreenMessage runs every tool_use block in msg through gate, in content
// order. The returned error reports recording failures only; the screened
// list is always complete.
func ScreenMessage(ctx context.Context, gate *core.Gate, msg *anthropic.Message, md scope.Metadata) ([]Screened, error) {
	var (
		screened []Screened
		firstErr error
	)

	for _, tu := range extractToolUses(msg) {
		input, err := decodeInput(tu.Input)
		if err != nil {
			slog.Warn("invalid tool input", "name", tu.Name, "id", tu.ID, "error", err)
			screened = append(screened, Screened{
				ToolUseID:    tu.ID,
				Decision:     intervention.Decision{Tool: tu.Name, Required: true, Reason: "tool input is not a JSON object"},
				InvalidInput: err.Error(),
			})
			continue
		}

		d, err := gate.Check(ctx, core.Request{Tool: tu.Name, Arguments: input, Metadata: md})
		if err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "screening %s", tu.ID)
		}
		screened = append(screened, Screened{ToolUseID: tu.ID, Decision: d})
	}

	return screened, firstErr
}

// decodeInput requires a JSON object. null decodes to a nil map without
// error, so it is rejected explicitly.
func decodeInput(raw json.RawMessage) (map[string]any, error) {
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, errors.New("input is null")
	}
	return input, nil
}

// Blocked filters screened down to the calls that need intervention.
func Blocked(screened []Screened) []Screened {
	var blocked []Screened
	for _, s := range screened {
		if s.Blocked() {
			blocked = append(blocked, s)
		}
	}
	return blocked
}

// DecodeMessage parses a Messages API response body.
func DecodeMessage(data []byte) (*anthropic.Message, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "decoding message")
	}
	return &msg, nil
}

func extractToolUses(resp *anthropic.Message) []anthropic.ToolUseBlock {
	if resp == nil {
		return nil
	}
	var tools []anthropic.ToolUseBlock
	for _, block := range resp.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			tools = append(tools, tu)
		}
	}
	return tools
}
