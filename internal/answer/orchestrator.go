// Package answer builds bounded prompts for detected questions and
// orchestrates answer generation with graceful degradation.
//
// Three paths exist, in order of preference: a configured generation provider
// (guarded by a circuit breaker), a fixed apology when the provider call
// fails, and per-question-type templates when no provider is configured at
// all. The degraded paths never call out externally and never fail.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/question"
	"github.com/hearsay-live/hearsay/internal/resilience"
	"github.com/hearsay-live/hearsay/pkg/provider/llm"
)

// Generation defaults, applied when the corresponding option is not given.
const (
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7
)

// Apology is broadcast when a question was confidently detected but the
// generation call failed.
const Apology = "I couldn't generate an answer at this time."

const systemPrompt = "You are a helpful AI assistant that provides brief, accurate answers during live meetings."

const promptPreamble = `You are an AI assistant helping during a live meeting.
Based on the conversation context and the question, provide a concise, helpful answer
in 1-2 sentences. Be clear, accurate, and to the point.`

// fallbackTemplates answer by question type when no provider is configured.
// Types without an entry share the generic template.
var fallbackTemplates = map[question.Type]string{
	question.TypeWhat:  "Based on the conversation so far, that hasn't been pinned down explicitly; the most recent discussion is the best reference.",
	question.TypeWho:   "The person responsible is likely in the project team, but I don't have specific details based on the conversation.",
	question.TypeWhen:  "Based on what was discussed, the timeline appears to be within the next two weeks, but no exact date was specified.",
	question.TypeWhere: "The location wasn't explicitly mentioned in the conversation.",
	question.TypeWhy:   "Based on the discussion, this approach was chosen to optimize efficiency and reduce overhead costs.",
	question.TypeHow:   "The process involves setting up the environment, configuring parameters, and executing the deployment script.",
}

const genericTemplate = "Based on the available context, I don't have enough information to provide a definitive answer to this question."

// Orchestrator turns a detected question plus short conversation context into
// an answer string. It is safe for concurrent use.
type Orchestrator struct {
	provider    llm.Provider
	breaker     *resilience.CircuitBreaker
	metrics     *observe.Metrics
	maxTokens   int
	temperature float64
}

// Option is a functional option for Orchestrator.
type Option func(*Orchestrator)

// WithMaxTokens bounds the generated answer length.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		o.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature for generation.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) {
		o.temperature = t
	}
}

// WithBreaker replaces the default circuit breaker guarding the provider.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *Orchestrator) {
		o.breaker = cb
	}
}

// WithMetrics replaces the process-default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator. provider may be nil; the orchestrator then runs
// permanently in the templated degraded mode.
func New(provider llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.breaker == nil {
		o.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "answer-generation",
		})
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Generate produces an answer for q given the short context view. It never
// returns an error: provider failures (including an open breaker) yield
// [Apology], and a missing provider yields the type-matched template.
func (o *Orchestrator) Generate(ctx context.Context, q *question.Detected, contextLines []string) string {
	if q == nil || q.Text == "" {
		return ""
	}

	if o.provider == nil {
		o.metrics.RecordAnswer(ctx, "template")
		return FallbackAnswer(q.Type)
	}

	prompt := buildPrompt(q.Text, contextLines)

	var resp *llm.CompletionResponse
	err := o.breaker.Execute(func() error {
		var callErr error
		resp, callErr = o.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages: []llm.Message{
				{Role: "user", Content: prompt},
			},
			MaxTokens:   o.maxTokens,
			Temperature: o.temperature,
		})
		return callErr
	})
	if err != nil {
		slog.Error("answer generation failed", "question", q.Text, "error", err)
		o.metrics.RecordAnswer(ctx, "apology")
		return Apology
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		slog.Warn("answer generation returned empty content", "question", q.Text)
		o.metrics.RecordAnswer(ctx, "apology")
		return Apology
	}
	o.metrics.RecordAnswer(ctx, "provider")

	slog.Info("generated answer", "question", q.Text, "tokens", resp.Usage.CompletionTokens)
	return strings.TrimSpace(resp.Content)
}

// FallbackAnswer returns the templated answer for a question type. Types
// without a dedicated template share the generic one.
func FallbackAnswer(t question.Type) string {
	if tpl, ok := fallbackTemplates[t]; ok {
		return tpl
	}
	return genericTemplate
}

// buildPrompt assembles the instruction preamble, the numbered context lines,
// and the question.
func buildPrompt(questionText string, contextLines []string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")

	if len(contextLines) > 0 {
		b.WriteString("Recent conversation:\n\n")
		for i, line := range contextLines {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, line)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\nProvide a brief answer:", questionText)
	return b.String()
}
