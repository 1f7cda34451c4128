package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	tsclient "github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// maxPerPage is the largest page Typesense serves.
const maxPerPage = 250

// Index is the part of the Typesense client the adapter depends on.
type Index interface {
	SearchDocuments(ctx context.Context, collection string, params *api.SearchCollectionParams) ([]map[string]interface{}, error)
	RetrieveDocument(ctx context.Context, collection, id string) (map[string]interface{}, error)
}

// TypesenseAdapter ranks reference codes using Typesense for candidate
// retrieval and the shared weight table for scoring. Results are cached
// aside in the cache tier.
type TypesenseAdapter struct {
	index Index
	cache *cache.Store
	ttl   cache.TTLPolicy
}

// Ensure TypesenseAdapter implements the search contracts
var (
	_ repositories.CodeSearcher                = (*TypesenseAdapter)(nil)
	_ repositories.RareConditionVectorSearcher = (*TypesenseAdapter)(nil)
)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(index Index, store *cache.Store, ttl cache.TTLPolicy) *TypesenseAdapter {
	if store == nil {
		store = cache.Nop()
	}
	return &TypesenseAdapter{index: index, cache: store, ttl: ttl}
}

// SearchDiagnoses ranks diagnosis codes for the keyword set. Literal codes
// come first; fuzzy matches fill the remaining slots.
func (a *TypesenseAdapter) SearchDiagnoses(ctx context.Context, keywords entities.CategorizedKeywords, limit int) ([]entities.ScoredRow[entities.DiagnosisCode], error) {
	ctx, span := observability.StartSpan(ctx, "search.diagnoses")
	defer span.End()

	literal, err := lookupCodes(ctx, a, keywords.DiagnosisCodes(), tsclient.DiagnosisCollection, cache.DiagnosisKey, diagnosisFromDocument)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	terms := keywords.SearchTerms()
	if len(terms) == 0 || len(literal) >= limit {
		return ranking.Top(literal, ranking.DiagnosisKey, limit), nil
	}

	want := limit + len(literal)
	fuzzy, err := cachedFuzzy(ctx, a, cache.DiagnosisSearchKey(terms, want), func(ctx context.Context) ([]entities.ScoredRow[entities.DiagnosisCode], error) {
		return fuzzySearch(ctx, a.index, ranking.EntityDiagnosis, tsclient.DiagnosisCollection, terms, want,
			diagnosisFromDocument, ranking.ScoreDiagnosis, ranking.DiagnosisKey)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	rows := ranking.MergeLiteral(literal, fuzzy, ranking.DiagnosisKey, limit)
	observability.SetSpanAttributes(span, attribute.Int("search.results", len(rows)))
	return rows, nil
}

// SearchProcedures ranks procedure codes for the keyword set.
func (a *TypesenseAdapter) SearchProcedures(ctx context.Context, keywords entities.CategorizedKeywords, limit int) ([]entities.ScoredRow[entities.ProcedureCode], error) {
	ctx, span := observability.StartSpan(ctx, "search.procedures")
	defer span.End()

	literal, err := lookupCodes(ctx, a, keywords.ProcedureCodes(), tsclient.ProcedureCollection, cache.ProcedureKey, procedureFromDocument)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	terms := keywords.SearchTerms()
	if len(terms) == 0 || len(literal) >= limit {
		return ranking.Top(literal, ranking.ProcedureKey, limit), nil
	}

	want := limit + len(literal)
	fuzzy, err := cachedFuzzy(ctx, a, cache.ProcedureSearchKey(terms, want), func(ctx context.Context) ([]entities.ScoredRow[entities.ProcedureCode], error) {
		return fuzzySearch(ctx, a.index, ranking.EntityProcedure, tsclient.ProcedureCollection, terms, want,
			procedureFromDocument, ranking.ScoreProcedure, ranking.ProcedureKey)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	rows := ranking.MergeLiteral(literal, fuzzy, ranking.ProcedureKey, limit)
	observability.SetSpanAttributes(span, attribute.Int("search.results", len(rows)))
	return rows, nil
}

// GetMappingsFor returns every mapping for the given diagnosis codes, scored
// by text relevance plus the composite appropriateness score.
func (a *TypesenseAdapter) GetMappingsFor(ctx context.Context, diagnosisCodes []string, keywords entities.CategorizedKeywords) ([]entities.ScoredRow[entities.Mapping], error) {
	codes := normalizeCodes(diagnosisCodes)
	if len(codes) == 0 {
		return nil, nil
	}

	mappings, err := loadMany(ctx, a.loaders(ctx).MappingLoader, codes)
	if err != nil {
		return nil, err
	}

	terms := keywords.SearchTerms()
	rows := make([]entities.ScoredRow[entities.Mapping], 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, entities.ScoredRow[entities.Mapping]{Row: m, Score: ranking.ScoreMapping(m, terms)})
	}
	ranking.Sort(rows, ranking.MappingKey)
	return rows, nil
}

// GetDocumentsFor returns reference documents for the given diagnosis codes.
func (a *TypesenseAdapter) GetDocumentsFor(ctx context.Context, diagnosisCodes []string, keywords entities.CategorizedKeywords) ([]entities.ScoredRow[entities.ReferenceDocument], error) {
	codes := normalizeCodes(diagnosisCodes)
	if len(codes) == 0 {
		return nil, nil
	}

	docs, err := loadMany(ctx, a.loaders(ctx).DocumentLoader, codes)
	if err != nil {
		return nil, err
	}

	terms := keywords.SearchTerms()
	rows := make([]entities.ScoredRow[entities.ReferenceDocument], 0, len(docs))
	for _, d := range docs {
		rows = append(rows, entities.ScoredRow[entities.ReferenceDocument]{Row: d, Score: ranking.ScoreDocument(d, terms)})
	}
	ranking.Sort(rows, ranking.DocumentKey)
	return rows, nil
}

func (a *TypesenseAdapter) loaders(ctx context.Context) *Loaders {
	if l := For(ctx); l != nil {
		return l
	}
	return a.NewLoaders()
}

// loadMappings reads warm mapping hashes and queries the index for the rest.
func (a *TypesenseAdapter) loadMappings(ctx context.Context, codes []string) (map[string][]entities.Mapping, error) {
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = cache.MappingKey(code)
	}

	out := make(map[string][]entities.Mapping, len(codes))
	var missing []string
	for i, entry := range cache.BulkLookup[map[string]entities.Mapping](ctx, a.cache, cache.KindHash, keys) {
		if !entry.Found {
			missing = append(missing, codes[i])
			continue
		}
		out[codes[i]] = mappingSlice(entry.Value)
	}
	if len(missing) == 0 {
		return out, nil
	}

	docs, err := a.filterAll(ctx, tsclient.MappingCollection, "diagnosis_code", missing)
	if err != nil {
		return nil, err
	}

	fetched := make(map[string]map[string]entities.Mapping, len(missing))
	for _, doc := range docs {
		m := mappingFromDocument(doc)
		code := entities.NormalizeDiagnosisCode(m.DiagnosisCode)
		if fetched[code] == nil {
			fetched[code] = map[string]entities.Mapping{}
		}
		fetched[code][m.ProcedureCode] = m
	}
	for code, set := range fetched {
		out[code] = mappingSlice(set)
		a.cache.Set(ctx, cache.KindHash, cache.MappingKey(code), set, a.ttl.MappingSet)
	}
	return out, nil
}

// loadDocuments reads cached reference documents and queries the index for the rest.
func (a *TypesenseAdapter) loadDocuments(ctx context.Context, codes []string) (map[string][]entities.ReferenceDocument, error) {
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = cache.DocumentKey(code)
	}

	out := make(map[string][]entities.ReferenceDocument, len(codes))
	var missing []string
	for i, entry := range cache.BulkLookup[[]entities.ReferenceDocument](ctx, a.cache, cache.KindDocument, keys) {
		if !entry.Found {
			missing = append(missing, codes[i])
			continue
		}
		out[codes[i]] = entry.Value
	}
	if len(missing) == 0 {
		return out, nil
	}

	docs, err := a.filterAll(ctx, tsclient.DocumentCollection, "diagnosis_code", missing)
	if err != nil {
		return nil, err
	}

	fetched := make(map[string][]entities.ReferenceDocument, len(missing))
	for _, code := range missing {
		fetched[code] = []entities.ReferenceDocument{}
	}
	for _, doc := range docs {
		d := referenceDocumentFromDocument(doc)
		code := entities.NormalizeDiagnosisCode(d.DiagnosisCode)
		fetched[code] = append(fetched[code], d)
	}
	for code, set := range fetched {
		out[code] = set
		a.cache.Set(ctx, cache.KindDocument, cache.DocumentKey(code), set, a.ttl.Document)
	}
	return out, nil
}

// filterAll pages through every document whose field equals one of values.
func (a *TypesenseAdapter) filterAll(ctx context.Context, collection, field string, values []string) ([]map[string]interface{}, error) {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "`" + strings.ReplaceAll(v, "`", "") + "`"
	}
	filter := fmt.Sprintf("%s:=[%s]", field, strings.Join(quoted, ","))

	var all []map[string]interface{}
	for page := 1; ; page++ {
		docs, err := a.index.SearchDocuments(ctx, collection, &api.SearchCollectionParams{
			Q:        pointer.String("*"),
			FilterBy: pointer.String(filter),
			PerPage:  pointer.Int(maxPerPage),
			Page:     pointer.Int(page),
		})
		if err != nil {
			return nil, apperrors.NewUnavailableError(fmt.Sprintf("search index filter on %s failed", collection), err)
		}
		all = append(all, docs...)
		if len(docs) < maxPerPage {
			return all, nil
		}
	}
}

// lookupCodes resolves literal codes through the cache, then the index.
// Unknown codes are skipped.
func lookupCodes[T any](
	ctx context.Context,
	a *TypesenseAdapter,
	codes []string,
	collection string,
	keyFn func(string) string,
	decode func(map[string]interface{}) T,
) ([]entities.ScoredRow[T], error) {
	if len(codes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = keyFn(code)
	}

	rows := make([]entities.ScoredRow[T], 0, len(codes))
	for i, entry := range cache.BulkLookup[T](ctx, a.cache, cache.KindDocument, keys) {
		if entry.Found {
			rows = append(rows, entities.ScoredRow[T]{Row: entry.Value, Score: ranking.LiteralMatchScore})
			continue
		}

		doc, err := a.index.RetrieveDocument(ctx, collection, strings.ToUpper(codes[i]))
		if errors.Is(err, tsclient.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, apperrors.NewUnavailableError("search index lookup failed", err)
		}
		row := decode(doc)
		a.cache.Set(ctx, cache.KindDocument, keys[i], row, a.ttl.CodeLookup)
		rows = append(rows, entities.ScoredRow[T]{Row: row, Score: ranking.LiteralMatchScore})
	}
	return rows, nil
}

// cachedFuzzy serves a fuzzy result set from the cache or computes and stores it.
func cachedFuzzy[T any](
	ctx context.Context,
	a *TypesenseAdapter,
	key string,
	compute func(context.Context) ([]entities.ScoredRow[T], error),
) ([]entities.ScoredRow[T], error) {
	if rows, ok := cache.Lookup[[]entities.ScoredRow[T]](ctx, a.cache, cache.KindScalar, key); ok {
		return rows, nil
	}
	rows, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	a.cache.Set(ctx, cache.KindScalar, key, rows, a.ttl.SearchResult)
	return rows, nil
}

// fuzzySearch issues one query per term (terms are OR-combined), unions the
// candidates and re-scores them with the shared weight table. Each weighted
// field is searched with infix matching and every page is read, so the
// candidate set contains every row the relational CASE-sum scores above zero.
func fuzzySearch[T any](
	ctx context.Context,
	index Index,
	entity ranking.Entity,
	collection string,
	terms []string,
	limit int,
	decode func(map[string]interface{}) T,
	score func(T, []string) float64,
	key func(T) string,
) ([]entities.ScoredRow[T], error) {
	var mu sync.Mutex
	candidates := make(map[string]T)

	g, gctx := errgroup.WithContext(ctx)
	for _, term := range terms {
		g.Go(func() error {
			return candidatePages(gctx, index, entity, collection, term, func(docs []map[string]interface{}) {
				mu.Lock()
				defer mu.Unlock()
				for _, doc := range docs {
					row := decode(doc)
					candidates[key(row)] = row
				}
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewUnavailableError(fmt.Sprintf("search index query on %s failed", collection), err)
	}

	rows := make([]entities.ScoredRow[T], 0, len(candidates))
	for _, row := range candidates {
		if s := score(row, terms); s > 0 {
			rows = append(rows, entities.ScoredRow[T]{Row: row, Score: s})
		}
	}
	return ranking.Top(rows, key, limit), nil
}

// candidatePages reads every page of matches for term. Typesense orders hits
// by its own text match, not by the weight table, so stopping early could
// drop the best-scoring row.
func candidatePages(
	ctx context.Context,
	index Index,
	entity ranking.Entity,
	collection, term string,
	emit func([]map[string]interface{}),
) error {
	params := matchParams(entity, term)
	for page := 1; ; page++ {
		params.Page = pointer.Int(page)
		docs, err := index.SearchDocuments(ctx, collection, params)
		if err != nil {
			return err
		}
		emit(docs)
		if len(docs) < maxPerPage {
			return nil
		}
	}
}

// matchParams builds a query that matches term anywhere inside a token of
// any weighted field. Typo tolerance and token dropping stay off; they only
// add rows the weight table scores zero.
func matchParams(entity ranking.Entity, term string) *api.SearchCollectionParams {
	queryBy, weights := ranking.QueryBy(entity)
	infix := make([]string, len(ranking.Weights(entity)))
	for i := range infix {
		infix[i] = "always"
	}
	return &api.SearchCollectionParams{
		Q:                   pointer.String(term),
		QueryBy:             pointer.String(queryBy),
		QueryByWeights:      pointer.String(weights),
		Infix:               pointer.String(strings.Join(infix, ",")),
		NumTypos:            pointer.String("0"),
		DropTokensThreshold: pointer.Int(0),
		PerPage:             pointer.Int(maxPerPage),
	}
}

func mappingSlice(set map[string]entities.Mapping) []entities.Mapping {
	out := make([]entities.Mapping, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcedureCode < out[j].ProcedureCode })
	return out
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = entities.NormalizeDiagnosisCode(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
