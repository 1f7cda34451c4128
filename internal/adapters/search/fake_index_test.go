package search

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/typesense/typesense-go/v2/typesense/api"
	tsclient "github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/typesense"
)

var filterValues = regexp.MustCompile("`([^`]*)`")

// fakeIndex answers searches the way Typesense matches text: query and field
// are split into tokens with punctuation removed, every query token must
// match a token of the same field, the last token may match as a prefix and
// a token matches inside a word only when infix is "always" for that field.
// Hits come back in insertion order, not by any score, and pages are capped
// at 250 rows.
type fakeIndex struct {
	mu          sync.Mutex
	collections map[string][]map[string]interface{}
	searches    int
	retrieves   int
	err         error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{collections: map[string][]map[string]interface{}{}}
}

func (f *fakeIndex) add(collection string, docs ...map[string]interface{}) {
	f.collections[collection] = append(f.collections[collection], docs...)
}

func (f *fakeIndex) SearchDocuments(_ context.Context, collection string, params *api.SearchCollectionParams) ([]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.err != nil {
		return nil, f.err
	}

	var out []map[string]interface{}
	for _, doc := range f.collections[collection] {
		if params.FilterBy != nil && !matchesFilter(doc, *params.FilterBy) {
			continue
		}
		if q := deref(params.Q); q != "*" && q != "" && !matchesQuery(doc, q, deref(params.QueryBy), deref(params.Infix)) {
			continue
		}
		out = append(out, doc)
	}

	page, perPage := 1, 10
	if params.Page != nil {
		page = *params.Page
	}
	if params.PerPage != nil {
		perPage = *params.PerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	start := (page - 1) * perPage
	if start >= len(out) {
		return nil, nil
	}
	end := start + perPage
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (f *fakeIndex) RetrieveDocument(_ context.Context, collection, id string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves++
	if f.err != nil {
		return nil, f.err
	}
	for _, doc := range f.collections[collection] {
		if doc["id"] == id {
			return doc, nil
		}
	}
	return nil, tsclient.ErrDocumentNotFound
}

func matchesFilter(doc map[string]interface{}, filter string) bool {
	field := filter[:strings.Index(filter, ":")]
	for _, m := range filterValues.FindAllStringSubmatch(filter, -1) {
		if str(doc, field) == m[1] {
			return true
		}
	}
	return false
}

func matchesQuery(doc map[string]interface{}, q, queryBy, infix string) bool {
	queryTokens := tokenize(q)
	if len(queryTokens) == 0 {
		return false
	}
	modes := strings.Split(infix, ",")
	for i, field := range strings.Split(queryBy, ",") {
		text := str(doc, field)
		if text == "" {
			text = strings.Join(strs(doc, field), " ")
		}
		inWord := i < len(modes) && modes[i] == "always"
		if fieldMatches(tokenize(text), queryTokens, inWord) {
			return true
		}
	}
	return false
}

func fieldMatches(fieldTokens, queryTokens []string, inWord bool) bool {
	for i, qt := range queryTokens {
		last := i == len(queryTokens)-1
		matched := false
		for _, ft := range fieldTokens {
			if ft == qt || (last && strings.HasPrefix(ft, qt)) || (inWord && strings.Contains(ft, qt)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		token := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, word)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
