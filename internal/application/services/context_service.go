package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Path names the tier that produced a context block.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
	PathTerminal Path = "terminal"
	PathError    Path = "error"
	PathEmpty    Path = "empty"
)

// ContextResult is one generated context block and how it was produced.
type ContextResult struct {
	Text      string        `json:"context"`
	Path      Path          `json:"path"`
	RequestID string        `json:"request_id"`
	Duration  time.Duration `json:"-"`
}

// ContextServiceConfig tunes the orchestrator.
type ContextServiceConfig struct {
	DiagnosisLimit     int
	ProcedureLimit     int
	TopDiagnoses       int
	PreviewLength      int
	ProbeTimeout       time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// DefaultContextServiceConfig returns the standard limits.
func DefaultContextServiceConfig() ContextServiceConfig {
	return ContextServiceConfig{
		DiagnosisLimit:     10,
		ProcedureLimit:     10,
		TopDiagnoses:       5,
		PreviewLength:      entities.DefaultPreviewLength,
		ProbeTimeout:       2 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// ContextServiceConfigFromEngine overlays engine settings on the defaults.
func ContextServiceConfigFromEngine(cfg config.EngineConfig) ContextServiceConfig {
	c := DefaultContextServiceConfig()
	if cfg.DiagnosisLimit > 0 {
		c.DiagnosisLimit = cfg.DiagnosisLimit
	}
	if cfg.ProcedureLimit > 0 {
		c.ProcedureLimit = cfg.ProcedureLimit
	}
	if cfg.TopDiagnosesForMaps > 0 {
		c.TopDiagnoses = cfg.TopDiagnosesForMaps
	}
	if cfg.DocumentPreviewLen > 0 {
		c.PreviewLength = cfg.DocumentPreviewLen
	}
	if cfg.ProbeTimeout > 0 {
		c.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.BreakerMaxFailures > 0 {
		c.BreakerMaxFailures = cfg.BreakerMaxFailures
	}
	if cfg.BreakerOpenTimeout > 0 {
		c.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	}
	return c
}

// ContextOption customises a ContextService.
type ContextOption func(*ContextService)

// WithRequestScope installs a hook that decorates each request context,
// e.g. to attach per-request batch loaders.
func WithRequestScope(fn func(context.Context) context.Context) ContextOption {
	return func(s *ContextService) { s.scope = fn }
}

// WithContextMetrics records the chosen path of every request.
func WithContextMetrics(m *observability.ContextMetrics) ContextOption {
	return func(s *ContextService) { s.metrics = m }
}

// ContextService assembles the reference context for a set of extracted
// keywords, degrading from the search tier to the relational store and
// finally to an unweighted substring match.
type ContextService struct {
	primary   repositories.CodeSearcher
	fallback  repositories.CodeSearcher
	substring repositories.SubstringSearcher
	probe     providers.HealthChecker
	breaker   *gobreaker.CircuitBreaker
	metrics   *observability.ContextMetrics
	scope     func(context.Context) context.Context
	cfg       ContextServiceConfig
}

// NewContextService creates a new context service. primary and probe may be
// nil, in which case every request is served by the relational fallback.
func NewContextService(
	primary repositories.CodeSearcher,
	probe providers.HealthChecker,
	fallback repositories.CodeSearcher,
	substring repositories.SubstringSearcher,
	cfg ContextServiceConfig,
	opts ...ContextOption,
) *ContextService {
	s := &ContextService{
		primary:   primary,
		fallback:  fallback,
		substring: substring,
		probe:     probe,
		cfg:       cfg,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search-tier",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := observability.GetLogger()
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssembleContext returns the formatted context block. It never returns an
// empty string.
func (s *ContextService) AssembleContext(ctx context.Context, keywords []string) string {
	return s.Generate(ctx, keywords).Text
}

// Generate runs the fallback cascade and reports which path served the request.
func (s *ContextService) Generate(ctx context.Context, keywords []string) ContextResult {
	start := time.Now()
	requestID, ok := observability.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = observability.WithRequestID(ctx, requestID)
	}
	if s.scope != nil {
		ctx = s.scope(ctx)
	}
	ctx, span := observability.StartSpan(ctx, "context.generate")
	defer span.End()

	logger := observability.LoggerFromContext(ctx)
	kw := entities.CategorizeKeywords(keywords)

	finish := func(path Path, text string) ContextResult {
		elapsed := time.Since(start)
		s.metrics.RecordPath(ctx, string(path), float64(elapsed.Milliseconds()))
		observability.SetSpanAttributes(span,
			attribute.String("context.path", string(path)),
			attribute.Int("context.keywords", len(keywords)),
		)
		logger.Info().
			Str("op", "assemble_context").
			Str("path", string(path)).
			Strs("query", kw.SearchTerms()).
			Strs("codes", kw.LiteralCodes).
			Dur("duration_ms", elapsed).
			Msg("context generated")
		return ContextResult{Text: text, Path: path, RequestID: requestID, Duration: elapsed}
	}

	if kw.IsEmpty() {
		return finish(PathEmpty, NoContextSentinel)
	}

	sections, err := s.runPrimary(ctx, kw)
	if err == nil && sections.HasCodes() {
		return finish(PathPrimary, FormatContext(sections, s.cfg.PreviewLength))
	}
	reason := "no_results"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "circuit_open"
	case err != nil:
		reason = "search_tier_error"
	}
	logger.Info().Err(err).Str("path", string(PathFallback)).Str("reason", reason).Msg("search tier skipped, using relational fallback")

	sections, err = s.runWeighted(ctx, s.fallback, kw)
	if err == nil {
		return finish(PathFallback, FormatContext(sections, s.cfg.PreviewLength))
	}
	observability.RecordError(span, err)
	logger.Error().Err(err).Str("path", string(PathTerminal)).Msg("weighted fallback failed, using substring match")

	sections, err = s.runSubstring(ctx, kw)
	if err == nil {
		return finish(PathTerminal, FormatContext(sections, s.cfg.PreviewLength))
	}
	observability.RecordError(span, err)
	logger.Error().Err(err).Str("path", string(PathError)).Msg("substring fallback failed")
	return finish(PathError, ErrorSentinel)
}

// runPrimary probes the search tier and runs the weighted search against
// it, both inside the circuit breaker.
func (s *ContextService) runPrimary(ctx context.Context, kw entities.CategorizedKeywords) (ContextSections, error) {
	if s.primary == nil || s.probe == nil {
		return ContextSections{}, apperrors.ErrSearchUnavailable
	}

	var sections ContextSections
	_, err := s.breaker.Execute(func() (interface{}, error) {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		err := s.probe.Healthy(probeCtx)
		cancel()
		if err != nil {
			return nil, apperrors.NewUnavailableError("search tier probe failed", err)
		}

		result, err := s.runWeighted(ctx, s.primary, kw)
		if err != nil {
			return nil, err
		}
		sections = result
		return nil, nil
	})
	return sections, err
}

// runWeighted searches diagnoses and procedures concurrently, then loads
// mappings and documents for the top diagnoses.
func (s *ContextService) runWeighted(ctx context.Context, searcher repositories.CodeSearcher, kw entities.CategorizedKeywords) (ContextSections, error) {
	sections := ContextSections{Scored: true}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := searcher.SearchDiagnoses(gctx, kw, s.cfg.DiagnosisLimit)
		sections.Diagnoses = rows
		return err
	})
	g.Go(func() error {
		rows, err := searcher.SearchProcedures(gctx, kw, s.cfg.ProcedureLimit)
		sections.Procedures = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return ContextSections{}, err
	}

	codes := topCodes(sections.Diagnoses, s.cfg.TopDiagnoses)
	if len(codes) == 0 {
		return sections, nil
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := searcher.GetMappingsFor(gctx, codes, kw)
		sections.Mappings = rows
		return err
	})
	g.Go(func() error {
		rows, err := searcher.GetDocumentsFor(gctx, codes, kw)
		sections.Documents = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return ContextSections{}, err
	}
	return sections, nil
}

func (s *ContextService) runSubstring(ctx context.Context, kw entities.CategorizedKeywords) (ContextSections, error) {
	terms := append(kw.SearchTerms(), kw.LiteralCodes...)
	result, err := s.substring.SubstringSearch(ctx, terms, s.cfg.DiagnosisLimit)
	if err != nil {
		return ContextSections{}, err
	}
	return sectionsFromSubstring(result.Diagnoses, result.Procedures, result.Mappings), nil
}

func topCodes(rows []entities.ScoredRow[entities.DiagnosisCode], n int) []string {
	codes := make([]string, 0, n)
	for _, r := range rows {
		if len(codes) == n {
			break
		}
		codes = append(codes, r.Row.Code)
	}
	return codes
}
