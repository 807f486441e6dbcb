// Package router implements the Query Router (C10): a keyword-signal
// classifier over incoming queries. It also declares the Analysis envelope
// of an LLM query analysis; the package itself makes no LLM call and parses
// no LLM reply.
package router

import (
	"regexp"
	"strings"
)

// Intent is one of the closed set of query intents.
type Intent string

const (
	IntentFactual     Intent = "factual"
	IntentRelational  Intent = "relational"
	IntentTemporal    Intent = "temporal"
	IntentProcedural  Intent = "procedural"
	IntentAggregation Intent = "aggregation"
	IntentHybrid      Intent = "hybrid"
)

// Classification is the router's decision.
type Classification struct {
	Intent     Intent
	Confidence float64
}

// Operation is the recommended downstream action.
type Operation string

const (
	OperationList   Operation = "list"
	OperationSearch Operation = "search"
)

// Recommendation is the (operation, extra_options, reason) triple from
// recommend_operation.
type Recommendation struct {
	Operation    Operation
	ExtraOptions map[string]string
	Reason       string
}

var relationalKeywords = []string{"related", "connected", "relationship", "linked", "associated", "between"}
var temporalKeywords = []string{"when", "recent", "yesterday", "today", "last week", "ago", "date", "history"}
var proceduralKeywords = []string{"how", "steps", "process", "guide", "instructions", "procedure"}
var factualKeywords = []string{"what", "who", "where", "define", "definition", "fact"}

var proceduralPattern = regexp.MustCompile(`(?i)\b(how to|do|can|should)\b`)
var factualPattern = regexp.MustCompile(`(?i)\b(what is|what are|does|'s the)\b`)
var strongTemporalPattern = regexp.MustCompile(`(?i)\b(latest|newest|most recent|just added|last created)\b`)
var punctuationPattern = regexp.MustCompile(`[^\w\s]`)

func matchCount(words []string, keywords []string, claimed map[string]bool) int {
	count := 0
	for _, w := range words {
		if claimed[w] {
			continue
		}
		for _, kw := range keywords {
			if w == kw {
				count++
				claimed[w] = true
				break
			}
		}
	}
	return count
}

func confidenceFor(count int) float64 {
	switch {
	case count == 0:
		return 0.0
	case count == 1:
		return 0.4
	case count == 2:
		return 0.6
	default:
		return 0.8
	}
}

// Classify implements the keyword-signal path of C10.
func Classify(query string) Classification {
	stripped := punctuationPattern.ReplaceAllString(strings.ToLower(query), " ")
	words := strings.Fields(stripped)
	claimed := make(map[string]bool)

	relCount := matchCount(words, relationalKeywords, claimed)
	temCount := matchCount(words, temporalKeywords, claimed)
	procCount := matchCount(words, proceduralKeywords, claimed)
	factCount := matchCount(words, factualKeywords, claimed)

	// Pattern matches add an additional signal on top of the keyword sets
	// (spec.md §4.10); they contribute once each since they match phrases,
	// not individual claimed words.
	if proceduralPattern.MatchString(query) {
		procCount++
	}
	if factualPattern.MatchString(query) {
		factCount++
	}

	scores := map[Intent]float64{
		IntentRelational: confidenceFor(relCount),
		IntentTemporal:   confidenceFor(temCount),
		IntentProcedural: confidenceFor(procCount),
		IntentFactual:    confidenceFor(factCount),
	}

	var best, second Intent
	var bestScore, secondScore float64 = -1, -1
	// Fixed iteration order: on equal scores the earlier intent wins.
	for _, intent := range []Intent{IntentRelational, IntentTemporal, IntentProcedural, IntentFactual} {
		score := scores[intent]
		if score > bestScore {
			second, secondScore = best, bestScore
			best, bestScore = intent, score
		} else if score > secondScore {
			second, secondScore = intent, score
		}
	}
	_ = second

	switch {
	case bestScore < 0.1:
		return Classification{Intent: IntentHybrid, Confidence: 0.5}
	case bestScore >= 0.3:
		return Classification{Intent: best, Confidence: bestScore}
	case secondScore > 0.8*bestScore:
		return Classification{Intent: IntentHybrid, Confidence: 0.6}
	default:
		return Classification{Intent: best, Confidence: bestScore}
	}
}

// RecommendOperation implements recommend_operation(query).
func RecommendOperation(query string) Recommendation {
	if strongTemporalPattern.MatchString(query) {
		return Recommendation{
			Operation:    OperationList,
			ExtraOptions: map[string]string{"sort": "recent", "limit": "5"},
			Reason:       "temporal_redirect",
		}
	}

	cls := Classify(query)
	if cls.Intent == IntentTemporal {
		return Recommendation{
			Operation:    OperationSearch,
			ExtraOptions: map[string]string{"strategy": "recency_heavy"},
			Reason:       "temporal",
		}
	}

	return Recommendation{
		Operation:    OperationSearch,
		ExtraOptions: map[string]string{"strategy": "auto"},
		Reason:       "semantic",
	}
}

// Analysis is the JSON envelope of an LLM query analysis. Nothing in this
// package produces or decodes it.
type Analysis struct {
	Intent         Intent   `json:"intent"`
	TimeReference  string   `json:"time_reference"`
	Topics         []string `json:"topics"`
	ExpandedQueries []string `json:"expanded_queries"`
	Confidence     float64  `json:"confidence"`
}

// MaxExpandedQueries bounds Analysis.ExpandedQueries per spec.md §4.10.
const MaxExpandedQueries = 3

// ExpandedQueryDiscount is applied to merged scores from expanded-query legs.
const ExpandedQueryDiscount = 0.8
