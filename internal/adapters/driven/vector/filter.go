package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// DefaultLimit is used when a search does not set one.
const DefaultLimit = 10

// Matches reports whether payload satisfies every filter. Numbers compare
// by value regardless of their Go type, so a filter of 3 matches a payload
// decoded from JSON as 3.0.
func Matches(payload map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := payload[key]
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}

// Equal compares two scalar payload values.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank applies the threshold, sorts by descending score with point id as
// tie break, and truncates to the limit. It never pads.
func Rank(results []domain.SearchResult, opts domain.SearchOptions) []domain.SearchResult {
	kept := results[:0]
	for _, r := range results {
		if opts.ScoreThreshold != nil && r.Score < *opts.ScoreThreshold {
			continue
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].PointID < kept[j].PointID
	})
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// CheckDimension validates every point against the collection dimension.
func CheckDimension(collection string, dimension int, points []domain.Point) error {
	for _, p := range points {
		if len(p.Vector) != dimension {
			return &domain.DimensionMismatchError{Collection: collection, Want: dimension, Got: len(p.Vector)}
		}
	}
	return nil
}

// DocumentID returns the document id stored in a payload.
func DocumentID(payload map[string]any) string {
	id, _ := payload[domain.PayloadDocumentID].(string)
	return id
}
