package entities

// RareCondition is a curated registry entry used only for similarity ranking.
type RareCondition struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Symptoms    string    `json:"symptoms,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
}
