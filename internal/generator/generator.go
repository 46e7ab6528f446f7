// Package generator produces grounded answers from retrieved context using
// the configured chat model. It owns the prompt template, response parsing,
// and the generation-side telemetry.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/r4ven-labs/ragpipe/internal/faults"
	"github.com/r4ven-labs/ragpipe/internal/logging"
	"github.com/r4ven-labs/ragpipe/internal/telemetry"
)

// promptTemplate instructs the model to answer strictly from the supplied
// context. The off-topic refusal sentence is matched verbatim by downstream
// consumers — do not reword it without coordinating.
const promptTemplate = "You are a helpful assistant. Use the context below to answer the question. " +
	"If the context doesn't contain enough information, say so clearly." +
	"When answering a question, be concise and to the point." +
	"For off topic questions, respond with 'I'm sorry, I can't help with that.'\n\n" +
	"Context:\n%s\n\n" +
	"Question: %s\n\n" +
	"Answer:"

// Generator wraps a chat model with the grounded-answer prompt and
// response parsing. Safe for concurrent use.
type Generator struct {
	// chat is the underlying chat model. Generation parameters (max tokens,
	// temperature) are fixed at model construction.
	chat model.BaseChatModel

	// system labels the provider in telemetry (e.g. "bedrock", "ollama").
	system string

	// model is the model identifier, used for telemetry labels and logging.
	model string

	// sink receives latency and token-usage observations.
	sink telemetry.Sink
}

// New constructs a Generator over the given chat model. system and modelName
// label the telemetry series; sink may be nil.
func New(chat model.BaseChatModel, system, modelName string, sink telemetry.Sink) *Generator {
	return &Generator{
		chat:   chat,
		system: system,
		model:  modelName,
		sink:   telemetry.OrNop(sink),
	}
}

// GenerateAnswer produces an answer to query grounded in contextText.
// The model's first content block is the answer; an empty or missing block
// is a malformed response. Upstream invocation failures are wrapped in
// [faults.ErrModelInvocation].
func (g *Generator) GenerateAnswer(ctx context.Context, query, contextText string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, contextText, query)
	start := time.Now()

	resp, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	latency := time.Since(start)
	g.sink.RecordOperationDuration(g.system, g.model, "chat", latency)
	if err != nil {
		return "", fmt.Errorf("generator: %w: %w", faults.ErrModelInvocation, err)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("generator: %w: response carries no content", faults.ErrMalformedResponse)
	}

	finishReason := "unknown"
	inputTokens, outputTokens := 0, 0
	if meta := resp.ResponseMeta; meta != nil {
		if meta.FinishReason != "" {
			finishReason = meta.FinishReason
		}
		if usage := meta.Usage; usage != nil {
			inputTokens = usage.PromptTokens
			outputTokens = usage.CompletionTokens
			g.sink.RecordTokenUsage(g.system, g.model, "chat", telemetry.TokenTypeInput, inputTokens)
			g.sink.RecordTokenUsage(g.system, g.model, "chat", telemetry.TokenTypeOutput, outputTokens)
		}
	}

	logging.FromContext(ctx).Info("answer generated",
		slog.String("model", g.model),
		slog.Duration("latency", latency),
		slog.Int("prompt_length", len(prompt)),
		slog.Int("answer_length", len(answer)),
		slog.String("finish_reason", finishReason),
		slog.Int("input_tokens", inputTokens),
		slog.Int("output_tokens", outputTokens),
	)

	return answer, nil
}

// Model returns the model identifier the generator was constructed with.
func (g *Generator) Model() string {
	return g.model
}
