package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/model"
	"github.com/Veraticus/gradeflow/internal/service"
)

// Config controls concurrency and retry behavior of the pipeline.
type Config struct {
	// Sleep waits between attempts; nil uses a real, context-aware sleep.
	Sleep         func(ctx context.Context, d time.Duration) error
	MaxConcurrent int
	CallTimeout   time.Duration
	MaxRetries    int
	BaseDelay     time.Duration
	// Parallel=false forces one page call in flight at a time.
	Parallel bool
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		Parallel:      true,
		CallTimeout:   120 * time.Second,
		MaxRetries:    3,
		BaseDelay:     time.Second,
	}
}

// PageAssignment maps a question (and optional sub-question) to the pages
// holding its answer.
type PageAssignment struct {
	SubQuestionID  string
	Pages          []int
	QuestionNumber int
}

func (a PageAssignment) key() answerKey {
	return answerKey{question: a.QuestionNumber, sub: a.SubQuestionID}
}

// TranscribeRequest is everything needed to transcribe one document.
type TranscribeRequest struct {
	StudentName         string
	Filename            string
	ProgrammingLanguage string
	Pages               []Page
	Assignments         []PageAssignment
}

// Pipeline transcribes documents with a vision model.
type Pipeline struct {
	client llm.Client
	logger *slog.Logger
	config Config
}

// NewPipeline creates a pipeline. Zero config values fall back to DefaultConfig.
func NewPipeline(client llm.Client, cfg Config, logger *slog.Logger) *Pipeline {
	defaults := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		client: client,
		config: cfg,
		logger: logger,
	}
}

type answerKey struct {
	sub      string
	question int
}

// pageOutcome is owned by exactly one page worker until Wait returns.
type pageOutcome struct {
	texts    map[answerKey]string
	degraded bool
}

// Transcribe produces a StudentTest for the request. Only caller
// cancellation makes it fail; exhausted pages are recorded as degraded.
func (p *Pipeline) Transcribe(ctx context.Context, req TranscribeRequest) (model.StudentTest, error) {
	pages := make(map[int]Page, len(req.Pages))
	for _, page := range req.Pages {
		page.DetectMIME()
		pages[page.Index] = page
	}

	targets := pageTargets(req.Assignments)
	order := make([]int, 0, len(targets))
	for _, page := range req.Pages {
		if _, ok := targets[page.Index]; ok {
			order = append(order, page.Index)
		} else {
			p.logger.Debug("page has no assigned questions, skipping", "page", page.Number())
		}
	}

	outcomes := make([]pageOutcome, len(order))

	limit := p.config.MaxConcurrent
	if !p.config.Parallel {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, index := range order {
		page := pages[index]
		g.Go(func() error {
			outcomes[i] = p.transcribePage(ctx, page, targets[index], req.ProgrammingLanguage)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return model.StudentTest{}, fmt.Errorf("transcription canceled: %w", err)
	}

	byPage := make(map[int]pageOutcome, len(order))
	for i, index := range order {
		byPage[index] = outcomes[i]
	}

	test := model.StudentTest{
		StudentName: req.StudentName,
		Filename:    req.Filename,
		Answers:     assemble(req.Assignments, byPage),
	}

	degraded := 0
	for _, a := range test.Answers {
		if a.Degraded() {
			degraded++
		}
	}
	p.logger.Info("transcription complete",
		"student", req.StudentName,
		"pages", len(order),
		"answers", len(test.Answers),
		"degraded_answers", degraded)

	return test, nil
}

// transcribePage runs one page through the model with timeout and retry.
func (p *Pipeline) transcribePage(ctx context.Context, page Page, targets []PageAssignment, language string) pageOutcome {
	req := llm.Request{
		System: systemPrompt,
		Prompt: buildPagePrompt(page, targets, language),
		Images: []llm.Image{{MIMEType: page.MIMEType, Data: page.Data}},
		JSON:   true,
	}

	var texts map[answerKey]string
	err := common.WithRetry(ctx, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		defer cancel()

		response, err := p.client.Complete(callCtx, req)
		if err != nil {
			p.logger.Debug("page transcription attempt failed",
				"page", page.Number(),
				"attempt", attempt+1,
				"error", err)
			return err
		}

		parsed, err := parsePageResponse(response, targets)
		if err != nil {
			llm.Reject(p.client, req)
			p.logger.Debug("page transcription reply rejected",
				"page", page.Number(),
				"attempt", attempt+1,
				"error", err)
			return err
		}
		texts = parsed
		return nil
	}, service.RetryOptions{
		MaxAttempts:  p.config.MaxRetries + 1,
		InitialDelay: p.config.BaseDelay,
		MaxDelay:     p.config.BaseDelay * time.Duration(pow3(p.config.MaxRetries)),
		Multiplier:   3,
		Sleep:        p.config.Sleep,
		Logger:       p.logger,
	})
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("page transcription exhausted, recording degraded answer",
				"page", page.Number(),
				"error", fmt.Errorf("%w: %w", common.ErrTranscriptionExhausted, err))
		}
		return pageOutcome{degraded: true}
	}

	return pageOutcome{texts: texts}
}

// parsePageResponse extracts per-question text from a model response.
// Plain text is accepted when the page holds a single answer.
func parsePageResponse(response string, targets []PageAssignment) (map[answerKey]string, error) {
	body := llm.StripCodeFences(response)
	texts := make(map[answerKey]string, len(targets))

	if !gjson.Valid(body) || !gjson.Get(body, "answers").IsArray() {
		if len(targets) == 1 {
			texts[targets[0].key()] = body
			return texts, nil
		}
		return nil, fmt.Errorf("%w: page response is not an answers document", common.ErrMalformedResponse)
	}

	for _, a := range gjson.Get(body, "answers").Array() {
		key := answerKey{
			question: int(a.Get("question_number").Int()),
			sub:      a.Get("sub_question_id").String(),
		}
		if _, seen := texts[key]; seen {
			continue
		}
		texts[key] = a.Get("answer_text").String()
	}

	// A single-target page may come back without matching keys.
	if len(targets) == 1 {
		if _, ok := texts[targets[0].key()]; !ok {
			answers := gjson.Get(body, "answers").Array()
			if len(answers) == 1 {
				texts[targets[0].key()] = answers[0].Get("answer_text").String()
			}
		}
	}

	return texts, nil
}

// pageTargets inverts the assignment list into page -> assignments,
// keeping assignment order.
func pageTargets(assignments []PageAssignment) map[int][]PageAssignment {
	out := make(map[int][]PageAssignment)
	for _, a := range assignments {
		for _, index := range a.Pages {
			out[index] = append(out[index], a)
		}
	}
	return out
}

func pow3(n int) int {
	v := 1
	for i := 0; i < n; i++ {
		v *= 3
	}
	return v
}
