package entities

// ScoredRow pairs a reference row with the relevance score that produced it.
// Never persisted except as a cached search result.
type ScoredRow[T any] struct {
	Row   T       `json:"row"`
	Score float64 `json:"score"`
}

// Rows strips the scores, keeping order.
func Rows[T any](scored []ScoredRow[T]) []T {
	out := make([]T, len(scored))
	for i, s := range scored {
		out[i] = s.Row
	}
	return out
}
