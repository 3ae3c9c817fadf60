// Package toolloop implements the Tool Loop (C10, §4.10): drive a provider
// against an optional toolset until a final assistant message, interleaving
// tool invocations, with a step cap as the only safety net (§5).
package toolloop

import (
	"context"
	"fmt"

	"github.com/turnengine/engine/internal/llm"
	"github.com/turnengine/engine/internal/toolkit"
)

// ErrStepLimit is the sentinel behind TOOL_STEP_LIMIT.
type ErrStepLimit struct {
	MaxSteps int
}

func (e *ErrStepLimit) Error() string {
	return fmt.Sprintf("TOOL_STEP_LIMIT: exceeded max_steps=%d", e.MaxSteps)
}

// Sink receives every event the loop forwards from the provider, plus
// tool_call/tool_result notifications, so the caller's node span can
// re-emit them without the loop knowing about spans or buses.
type Sink interface {
	DeltaText(text string)
	DeltaThinking(text string)
	ToolCall(callID, name, argsJSON string)
	ToolResult(callID, name, resultJSON string, isError bool)
}

// Request configures one tool-loop run.
type Request struct {
	Provider       llm.Provider
	Model          string
	Messages       []llm.Message
	Params         llm.Params
	ResponseFormat llm.ResponseFormat
	Toolset        []toolkit.Def
	Registry       *toolkit.Registry
	MaxSteps       int
}

// Result is the outcome of a completed loop: the accumulated assistant text
// (from delta_text events across all steps) and the final message list,
// useful for nodes that must parse the whole response as JSON.
type Result struct {
	Text     string
	Messages []llm.Message
}

// Run drives the loop. When len(req.Toolset) == 0 this degenerates to a
// single provider call forwarded verbatim to sink.
func Run(ctx context.Context, req *Request, sink Sink) (*Result, error) {
	if req.MaxSteps <= 0 {
		req.MaxSteps = 1
	}

	var tools []llm.ToolDef
	allowed := make(map[string]bool, len(req.Toolset))
	for _, d := range req.Toolset {
		tools = append(tools, llm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.ParametersSchema,
		})
		allowed[d.Name] = true
	}

	messages := append([]llm.Message(nil), req.Messages...)
	var text string

	for step := 0; step < req.MaxSteps; step++ {
		completion := &llm.CompletionRequest{
			Model:          req.Model,
			Messages:       messages,
			Params:         req.Params,
			ResponseFormat: req.ResponseFormat,
			Tools:          tools,
		}

		events, err := req.Provider.Complete(ctx, completion)
		if err != nil {
			return nil, fmt.Errorf("PROVIDER_ERROR: %w", err)
		}

		var pendingCalls []llm.ToolCall
		var stepText string
		var sawError error

		for ev := range events {
			switch ev.Kind {
			case llm.EventDeltaText:
				stepText += ev.Text
				sink.DeltaText(ev.Text)
			case llm.EventDeltaThinking:
				sink.DeltaThinking(ev.Thinking)
			case llm.EventToolCall:
				pendingCalls = append(pendingCalls, *ev.ToolCall)
				sink.ToolCall(ev.ToolCall.ID, ev.ToolCall.Name, string(ev.ToolCall.Arguments))
			case llm.EventError:
				sawError = ev.Err
			case llm.EventDone:
				// handled after the loop exits
			}
		}

		if sawError != nil {
			return nil, fmt.Errorf("PROVIDER_ERROR: %w", sawError)
		}

		text += stepText
		if stepText != "" {
			messages = append(messages, llm.Message{Role: "assistant", Content: stepText})
		}

		if len(pendingCalls) == 0 {
			return &Result{Text: text, Messages: messages}, nil
		}

		for _, call := range pendingCalls {
			var resultJSON string
			var isError bool
			if !allowed[call.Name] {
				isError = true
				resultJSON = fmt.Sprintf(`{"ok":false,"error":"TOOL_ERROR: %s is not in this node's toolset"}`, call.Name)
			} else if result, err := req.Registry.Invoke(ctx, call.Name, call.Arguments); err != nil {
				isError = true
				resultJSON = fmt.Sprintf(`{"ok":false,"error":%q}`, err.Error())
			} else {
				resultJSON = result
			}
			sink.ToolResult(call.ID, call.Name, resultJSON, isError)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    resultJSON,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, &ErrStepLimit{MaxSteps: req.MaxSteps}
}
