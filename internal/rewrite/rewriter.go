package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/logging"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Saver persists accepted output as a new template next to the original.
type Saver interface {
	SaveEdited(original, content string) (string, error)
}

// Request is one rewrite of a template.
type Request struct {
	TemplateName string
	Original     string
	Instruction  string
}

// Result is the outcome of a rewrite that produced valid HTML.
type Result struct {
	HTML  string
	Valid bool
	// SavedAs is the new template name; empty when saving failed.
	SavedAs string
}

// Rewriter runs the rewrite pipeline.
type Rewriter struct {
	generator Generator
	saver     Saver
	logger    logging.Logger
	metrics   *instrumentation.Metrics
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLogger sets the logger used for pipeline events.
func WithLogger(l logging.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records rewrite outcomes and generation latency.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Rewriter) {
		r.metrics = m
	}
}

// NewRewriter creates a Rewriter.
func NewRewriter(gen Generator, saver Saver, opts ...Option) *Rewriter {
	r := &Rewriter{
		generator: gen,
		saver:     saver,
		logger:    logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite applies req.Instruction to req.Original.
//
// On success the result is saved through the Saver. If the output is valid
// but saving fails, the result is returned together with an error wrapping
// ErrSaveFailed so callers can still show the new HTML.
func (r *Rewriter) Rewrite(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return nil, ErrEmptyInstruction
	}
	if req.TemplateName == "" || req.Original == "" {
		return nil, ErrEmptyTemplate
	}

	ctx, span := instrumentation.StartSpan(ctx, "rewrite.template",
		attribute.String(instrumentation.SpanAttrTemplate, req.TemplateName))
	defer span.End()

	prompt := BuildPrompt(req.Original, req.Instruction)

	start := time.Now()
	raw, err := r.generator.Generate(ctx, prompt)
	r.metrics.RecordGeneration(ctx, statusOf(err), time.Since(start))
	if err != nil {
		r.logger.Warn("generation failed",
			logging.KeyTemplate, req.TemplateName,
			logging.KeyError, err.Error())
		r.metrics.RecordRewriteForTemplate(ctx, instrumentation.RewriteResultFailed, req.TemplateName)
		instrumentation.SetSpanError(span, err)
		if errors.Is(err, ErrGenerationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	html := Sanitize(raw)
	if !LooksLikeHTML(html) {
		invalid := &InvalidOutputError{Diagnostic: Diagnostic(html)}
		r.logger.Warn("rejected generated output",
			logging.KeyTemplate, req.TemplateName,
			"length", len(html))
		r.metrics.RecordRewriteForTemplate(ctx, instrumentation.RewriteResultRejected, req.TemplateName)
		instrumentation.SetSpanError(span, invalid)
		return nil, invalid
	}

	result := &Result{HTML: html, Valid: true}
	name, err := r.saver.SaveEdited(req.TemplateName, html)
	if err != nil {
		r.logger.Error("failed to save edited template",
			logging.KeyTemplate, req.TemplateName,
			logging.KeyError, err.Error())
		r.metrics.RecordRewriteForTemplate(ctx, instrumentation.RewriteResultFailed, req.TemplateName)
		instrumentation.SetSpanError(span, err)
		return result, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	result.SavedAs = name

	r.logger.Info("saved edited template",
		logging.KeyTemplate, req.TemplateName,
		"saved_as", name)
	r.metrics.RecordRewriteForTemplate(ctx, instrumentation.RewriteResultAccepted, req.TemplateName)
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func statusOf(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
