// Package pipeline runs one question through retrieve, grade, rewrite and generate.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragqa/internal/domain"
	"ragqa/internal/logging"
	"ragqa/internal/metrics"
)

// Stage names a step of the query state machine.
type Stage string

const (
	StageStart    Stage = "start"
	StageRetrieve Stage = "retrieve"
	StageGrade    Stage = "grade"
	StageRewrite  Stage = "rewrite"
	StageGenerate Stage = "generate"
	StageDone     Stage = "done"
)

// MaxRewritesLimit bounds Config.MaxRewrites.
const MaxRewritesLimit = 2

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}

type Grader interface {
	Grade(ctx context.Context, text string) domain.Grade
}

type Rewriter interface {
	Rewrite(ctx context.Context, query string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, query, passages string) (string, error)
}

// State is the per-call record of a query. It is owned by Run and never shared.
type State struct {
	Query string
	// RewrittenQuery is the query used by the last retrieval when a rewrite happened.
	RewrittenQuery string
	Context        string
	Response       string
	Rewrites       int
	Results        domain.RetrievalResult
}

type Config struct {
	TopK        int
	MaxRewrites int
}

type Pipeline struct {
	retriever   Retriever
	grader      Grader
	rewriter    Rewriter
	generator   Generator
	topK        int
	maxRewrites int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func New(retriever Retriever, grader Grader, rewriter Rewriter, generator Generator, cfg Config,
	m *metrics.Metrics, logger *zap.Logger) (*Pipeline, error) {
	if cfg.MaxRewrites < 0 || cfg.MaxRewrites > MaxRewritesLimit {
		return nil, fmt.Errorf("pipeline: max rewrites must be between 0 and %d, got %d", MaxRewritesLimit, cfg.MaxRewrites)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	logger = logging.OrNop(logger)
	return &Pipeline{
		retriever:   retriever,
		grader:      grader,
		rewriter:    rewriter,
		generator:   generator,
		topK:        cfg.TopK,
		maxRewrites: cfg.MaxRewrites,
		metrics:     m,
		logger:      logger.Named("pipeline"),
	}, nil
}

// AskQuestion returns the answer to query. On error no partial answer is returned.
func (p *Pipeline) AskQuestion(ctx context.Context, query string) (string, error) {
	st, err := p.Run(ctx, query)
	if err != nil {
		return "", err
	}
	return st.Response, nil
}

// Run drives the state machine to completion and returns the final state.
func (p *Pipeline) Run(ctx context.Context, query string) (State, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return State{}, domain.ErrEmptyQuery
	}
	st := State{Query: query}
	current := query
	stage := StageStart

	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			return p.fail(query, stage, err)
		}
		started := time.Now()
		next, err := p.step(ctx, stage, &st, &current)
		p.metrics.ObserveStage(string(stage), time.Since(started))
		if err != nil {
			return p.fail(query, stage, err)
		}
		p.logger.Debug("stage done", zap.String("stage", string(stage)), zap.String("next", string(next)))
		stage = next
	}

	outcome := metrics.OutcomeAnswered
	if strings.TrimSpace(st.Context) == "" {
		outcome = metrics.OutcomeRefused
	}
	p.metrics.ObserveQuery(outcome)
	p.logger.Info("question answered",
		zap.String("query", query),
		zap.Int("rewrites", st.Rewrites),
		zap.Int("results", len(st.Results)),
		zap.String("outcome", outcome))
	return st, nil
}

func (p *Pipeline) step(ctx context.Context, stage Stage, st *State, current *string) (Stage, error) {
	switch stage {
	case StageStart:
		return StageRetrieve, nil

	case StageRetrieve:
		res, err := p.retriever.Retrieve(ctx, *current, p.topK)
		if err != nil {
			return "", err
		}
		st.Results = res
		st.Context = res.Context()
		return StageGrade, nil

	case StageGrade:
		grade := p.grader.Grade(ctx, st.Context)
		switch grade {
		case domain.GradeSufficient:
			return StageGenerate, nil
		case domain.GradeInsufficient:
			if st.Rewrites < p.maxRewrites {
				return StageRewrite, nil
			}
			return StageGenerate, nil
		default:
			return "", fmt.Errorf("unknown grade %v", grade)
		}

	case StageRewrite:
		rewritten, err := p.rewriter.Rewrite(ctx, *current)
		if err != nil {
			return "", err
		}
		st.Rewrites++
		st.RewrittenQuery = rewritten
		*current = rewritten
		p.metrics.IncRewrites()
		p.logger.Debug("query rewritten", zap.String("from", st.Query), zap.String("to", rewritten))
		return StageRetrieve, nil

	case StageGenerate:
		resp, err := p.generator.Generate(ctx, st.Query, st.Context)
		if err != nil {
			return "", err
		}
		st.Response = resp
		return StageDone, nil
	}
	return "", fmt.Errorf("unknown stage %q", stage)
}

func (p *Pipeline) fail(query string, stage Stage, err error) (State, error) {
	p.metrics.ObserveQuery(metrics.OutcomeError)
	p.logger.Warn("question failed", zap.String("query", query), zap.String("stage", string(stage)), zap.Error(err))
	return State{}, fmt.Errorf("%s: %w", stage, err)
}
