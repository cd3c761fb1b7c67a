// Package context implements the Compactor and ContextManager. Compactor is
// kept stateless, mapping the items it is given to (kept, summary), resolving
// a cyclic ContextManager/Compactor reference the design started with:
// ContextManager drives Compactor, never the reverse.
package context

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/context-foundry/core/pkg/model"
)

// KeepLastN is the default number of most-recent items a compaction pass
// always retains: the last N items, default 8, roughly 4 interactions.
const KeepLastN = 8

// MinSummaryChars is the minimum acceptable summary length.
const MinSummaryChars = 100

// MinReductionPct is the minimum total-token reduction a compaction pass must
// achieve to be accepted.
const MinReductionPct = 0.10

// MaxSummaryRatio bounds a summary's token count relative to the tokens it
// summarized: less than 25% of the summarized inputs' token count.
const MaxSummaryRatio = 0.25

// DefaultRefusalPhrases are substrings that mark a summarizer response as a
// refusal rather than a real summary.
var DefaultRefusalPhrases = []string{
	"i don't see the content",
	"i don't have access to",
	"i cannot see any content",
	"no content was provided",
}

// Summarizer is the collaborator Compactor calls to synthesize the
// summarized remainder. In production this is backed by a ProviderClient
// call; tests may stub it directly.
type Summarizer interface {
	Summarize(ctx context.Context, items []model.ContentItem) (text string, err error)
}

// Result is the outcome of a single Compact call.
type Result struct {
	Kept       []model.ContentItem
	Summary    *model.ContentItem
	Accepted   bool
	Degraded   bool
	ReasonSkip string // non-empty when Accepted is false
}

// Compactor reduces a ContentItem list while preserving critical content. It
// holds a Summarizer and a Meter-shaped token counter but no item state of
// its own — every call is a pure function of its arguments.
type Compactor struct {
	summarizer     Summarizer
	estimateTokens func(text string) int64
	refusals       []string
}

// New builds a Compactor. estimateTokens counts tokens for a synthesized
// summary string (normally TokenMeter.Estimate(...).Tokens); refusals
// overrides DefaultRefusalPhrases when non-nil.
func New(summarizer Summarizer, estimateTokens func(string) int64, refusals []string) *Compactor {
	if refusals == nil {
		refusals = DefaultRefusalPhrases
	}
	return &Compactor{summarizer: summarizer, estimateTokens: estimateTokens, refusals: refusals}
}

// Compact runs the hybrid time+importance algorithm against items.
// It never mutates items; it returns a new kept slice and, when a reduction
// was needed, a synthesized summary item.
func (c *Compactor) Compact(ctx context.Context, items []model.ContentItem) Result {
	if len(items) == 0 {
		return Result{Kept: items, Accepted: true}
	}

	keep, summarize := partition(items)
	if len(summarize) == 0 {
		// Nothing left to summarize; the kept set already satisfies the
		// always-keep rules.
		return Result{Kept: keep, Accepted: true}
	}

	totalBefore := totalTokens(items)
	summarizedTokens := totalTokens(summarize)

	text, err := c.summarizer.Summarize(ctx, summarize)
	if err != nil {
		return c.basicFallback(items, keep, summarize, totalBefore)
	}

	if isRefusal(text, c.refusals) {
		return c.basicFallback(items, keep, summarize, totalBefore)
	}
	if len(text) < MinSummaryChars {
		return c.basicFallback(items, keep, summarize, totalBefore)
	}

	summaryTokens := c.estimateTokens(text)
	if summarizedTokens > 0 && float64(summaryTokens) >= float64(summarizedTokens)*MaxSummaryRatio {
		return c.basicFallback(items, keep, summarize, totalBefore)
	}

	summaryItem := model.ContentItem{
		Kind:       model.ContentSummary,
		Text:       text,
		TokenCount: summaryTokens,
		Importance: maxImportance(summarize),
		CreatedAt:  latestCreatedAt(summarize),
	}

	newKept := append(append([]model.ContentItem{}, keep...), summaryItem)
	totalAfter := totalTokens(newKept)

	if float64(totalBefore-totalAfter) < float64(totalBefore)*MinReductionPct {
		return c.basicFallback(items, keep, summarize, totalBefore)
	}

	return Result{Kept: newKept, Summary: &summaryItem, Accepted: true}
}

// basicFallback implements the failure-handling fallback: drop lowest-importance
// items from summarize until the surviving ones hold at most MaxSummaryRatio
// (25%) of summarize's tokens. A fallback that meets that target is accepted
// but still marked degraded; one that cannot returns items unchanged, also
// degraded, so the caller can raise a context_update event with degraded=true.
func (c *Compactor) basicFallback(original, keep, summarize []model.ContentItem, totalBefore int64) Result {
	target := totalTokens(keep) + int64(float64(totalTokens(summarize))*MaxSummaryRatio)

	sorted := append([]model.ContentItem{}, summarize...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Importance < sorted[j].Importance })

	remaining := append([]model.ContentItem{}, sorted...)
	for totalTokens(append(keep, remaining...)) > target && len(remaining) > 0 {
		remaining = remaining[1:]
	}

	newKept := append(append([]model.ContentItem{}, keep...), remaining...)
	if totalTokens(newKept) <= target {
		return Result{Kept: newKept, Accepted: true, Degraded: true}
	}

	return Result{
		Kept:       original,
		Accepted:   false,
		Degraded:   true,
		ReasonSkip: "fallback compaction could not reach the 25% target",
	}
}

// partition splits items into the always-kept set (last N items, critical
// kinds, and importance >= 0.9) and the remainder eligible for summarization.
func partition(items []model.ContentItem) (keep, rest []model.ContentItem) {
	lastN := make(map[int]bool, KeepLastN)
	start := len(items) - KeepLastN
	if start < 0 {
		start = 0
	}
	for i := start; i < len(items); i++ {
		lastN[i] = true
	}

	for i, item := range items {
		if lastN[i] || item.Kind.Critical() || item.Importance >= 0.9 {
			keep = append(keep, item)
		} else {
			rest = append(rest, item)
		}
	}
	return keep, rest
}

func totalTokens(items []model.ContentItem) int64 {
	var total int64
	for _, item := range items {
		total += item.TokenCount
	}
	return total
}

func maxImportance(items []model.ContentItem) float64 {
	var max float64
	for _, item := range items {
		if item.Importance > max {
			max = item.Importance
		}
	}
	return max
}

func latestCreatedAt(items []model.ContentItem) time.Time {
	var latest time.Time
	for _, item := range items {
		if item.CreatedAt.After(latest) {
			latest = item.CreatedAt
		}
	}
	return latest
}

func isRefusal(text string, refusals []string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusals {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
