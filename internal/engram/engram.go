// Package engram defines the canonical memory record and the shared
// vocabulary (categories, filters, errors) used across the memory engine.
package engram

import (
	"time"
)

// Category is the closed set of engram kinds.
type Category string

const (
	CategoryFact         Category = "fact"
	CategoryAction       Category = "action"
	CategoryObservation  Category = "observation"
	CategoryPlan         Category = "plan"
	CategoryEpisode      Category = "episode"
	CategoryProcedure    Category = "procedure"
	CategoryEntityAnchor Category = "entity_anchor"
)

// ValidCategory reports whether c belongs to the closed category set.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryFact, CategoryAction, CategoryObservation, CategoryPlan,
		CategoryEpisode, CategoryProcedure, CategoryEntityAnchor:
		return true
	}
	return false
}

// QuantizedEmbedding is an int8 surrogate for the float embedding, sufficient
// to reconstruct cosine similarity within the tolerance the store requires.
type QuantizedEmbedding struct {
	Bytes  []int8
	Scale  float32
	Offset float32
}

// Engram is the universal memory unit (spec.md §3).
type Engram struct {
	ID                 string             `json:"id"`
	Content            string             `json:"content"`
	Category           Category           `json:"category"`
	Importance         float64            `json:"importance"`
	OriginalImportance float64            `json:"original_importance"`
	Embedding          []float32          `json:"embedding,omitempty"`
	Quantized          *QuantizedEmbedding `json:"quantized,omitempty"`
	Metadata           map[string]any     `json:"metadata"`
	AccessCount        int64              `json:"access_count"`
	LastAccessedAt     time.Time          `json:"last_accessed_at"`
	InsertedAt         time.Time          `json:"inserted_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DecayRate          float64            `json:"decay_rate"`
	Protected          bool               `json:"protected"`
	ThreadID           string             `json:"thread_id,omitempty"`
	ProjectID          string             `json:"project_id"`
	Tags               []string           `json:"tags,omitempty"`
	SupersededAt       *time.Time         `json:"superseded_at,omitempty"`
}

// Active reports whether the engram is still eligible for retrieval, i.e.
// has not been superseded.
func (e *Engram) Active() bool { return e.SupersededAt == nil }

// DefaultProjectID is used whenever a caller does not scope an engram to a project.
const DefaultProjectID = "global"

// DecayRateForImportance returns the default decay rate for importance per the
// table in spec.md §4.3, used by the store on insert when no explicit
// decay_rate is supplied.
func DecayRateForImportance(importance float64) float64 {
	switch {
	case importance >= 0.9:
		return 0.0001
	case importance >= 0.7:
		return 0.001
	case importance >= 0.5:
		return 0.005
	case importance >= 0.3:
		return 0.02
	default:
		return 0.1
	}
}

// Clamp01 clamps x to [0, 1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
