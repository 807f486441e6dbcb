package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"memnexus/internal/consolidate"
	"memnexus/internal/engram"
	"memnexus/internal/llmprovider"
)

const curatorSystemPrompt = `You distill raw tool interactions into durable memories. ` +
	`Reply with a JSON array only, no prose. Each element: ` +
	`{"content": string, "category": one of fact|action|observation|plan|episode|procedure|entity_anchor, "importance": 0..1}. ` +
	`Omit interactions that aren't worth remembering; an empty array is a valid reply.`

// llmCurator implements consolidate.Curator over an llmprovider.Provider:
// the model is asked to reply with a bare JSON array rather than prose; the
// bracketed array is cut out of the trimmed reply and then decoded.
type llmCurator struct {
	provider llmprovider.Provider
}

func newLLMCurator(p llmprovider.Provider) *llmCurator {
	return &llmCurator{provider: p}
}

type curatedItem struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Importance float64 `json:"importance"`
}

func (c *llmCurator) Curate(ctx context.Context, batch []consolidate.Interaction) ([]consolidate.CuratedEngram, error) {
	prompt := buildInteractionPrompt(batch)
	raw, err := c.provider.Complete(ctx, curatorSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("curator: complete: %w", err)
	}

	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("curator: no JSON array in response")
	}

	var items []curatedItem
	if err := json.Unmarshal([]byte(raw[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("curator: decode: %w", err)
	}

	ids := make([]string, 0, len(batch))
	for _, in := range batch {
		ids = append(ids, in.ID)
	}

	curated := make([]consolidate.CuratedEngram, 0, len(items))
	for _, it := range items {
		content := strings.TrimSpace(it.Content)
		if content == "" {
			continue
		}
		category := engram.Category(it.Category)
		if !engram.ValidCategory(category) {
			category = engram.CategoryObservation
		}
		curated = append(curated, consolidate.CuratedEngram{
			Content:              content,
			Category:             category,
			Importance:           engram.Clamp01(it.Importance),
			SourceInteractionIDs: ids,
		})
	}
	return curated, nil
}

func buildInteractionPrompt(batch []consolidate.Interaction) string {
	var b strings.Builder
	for i, in := range batch {
		fmt.Fprintf(&b, "%d. tool=%s input=%s output=%s\n", i+1, in.ToolName, in.Input, in.Output)
	}
	return b.String()
}
