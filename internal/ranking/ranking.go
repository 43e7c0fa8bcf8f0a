// Package ranking holds the pure ordering rules shared by the server's ranking
// service and the client session: pass-through ordering, the deterministic
// fallback for unusable model output and the sanitizing of model scores.
package ranking

import (
	"math"

	"quizpicks/internal/model"
)

const (
	// TopN is the size of a ranked page built from one candidate pool
	TopN = 20

	PassThroughReason = "Search result"
	FallbackReason    = "Default fallback"
)

// IDSet builds a lookup set from product ids, ignoring empties
func IDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// PassThrough ranks products in input order with score 1.0 and a fixed reason.
// Empty, duplicate and excluded ids are skipped so ranks stay dense.
func PassThrough(products []model.Product, exclude []string, reason string) []model.RankedProduct {
	excluded := IDSet(exclude)
	seen := make(map[string]struct{}, len(products))
	out := make([]model.RankedProduct, 0, len(products))
	for _, p := range products {
		if p.ProductID == "" {
			continue
		}
		if _, ok := excluded[p.ProductID]; ok {
			continue
		}
		if _, ok := seen[p.ProductID]; ok {
			continue
		}
		seen[p.ProductID] = struct{}{}
		out = append(out, model.RankedProduct{
			Product: p,
			Rank:    len(out) + 1,
			Score:   1.0,
			Reason:  reason,
		})
	}
	return out
}

// Fallback keeps the first limit products in order with descending synthetic
// scores max(0, 1 - i/limit).
func Fallback(products []model.Product, exclude []string, limit int) []model.RankEntry {
	if limit <= 0 {
		limit = TopN
	}
	excluded := IDSet(exclude)
	seen := make(map[string]struct{}, len(products))
	out := make([]model.RankEntry, 0, min(limit, len(products)))
	for _, p := range products {
		if len(out) == limit {
			break
		}
		if p.ProductID == "" {
			continue
		}
		if _, ok := excluded[p.ProductID]; ok {
			continue
		}
		if _, ok := seen[p.ProductID]; ok {
			continue
		}
		seen[p.ProductID] = struct{}{}
		i := len(out)
		out = append(out, model.RankEntry{
			Rank:      i + 1,
			ProductID: p.ProductID,
			Score:     math.Max(0, 1-float64(i)/float64(limit)),
			Reason:    FallbackReason,
		})
	}
	return out
}

// Sanitize cleans model-produced entries: drops empty, duplicate, excluded and
// unknown ids (candidates nil means any id is known), clamps scores to [0,1],
// keeps at most limit rows and renumbers ranks from 1.
func Sanitize(entries []model.RankEntry, candidates map[string]struct{}, exclude []string, limit int) []model.RankEntry {
	if limit <= 0 {
		limit = TopN
	}
	excluded := IDSet(exclude)
	seen := make(map[string]struct{}, len(entries))
	out := make([]model.RankEntry, 0, min(limit, len(entries)))
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		if e.ProductID == "" {
			continue
		}
		if _, ok := excluded[e.ProductID]; ok {
			continue
		}
		if _, ok := seen[e.ProductID]; ok {
			continue
		}
		if candidates != nil {
			if _, ok := candidates[e.ProductID]; !ok {
				continue
			}
		}
		seen[e.ProductID] = struct{}{}
		e.Score = ClampScore(e.Score)
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out
}

// ClampScore maps any float into [0,1]; NaN becomes 0
func ClampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Renumber assigns consecutive ranks starting at base, in place
func Renumber(entries []model.RankEntry, base int) []model.RankEntry {
	for i := range entries {
		entries[i].Rank = base + i
	}
	return entries
}

// Hydrate fills ranked rows with the matching record from pool when one is
// known, drops empty, excluded and repeated ids, clamps scores and assigns
// ranks from base.
func Hydrate(rows []model.RankedProduct, pool []model.Product, exclude []string, base int) []model.RankedProduct {
	byID := make(map[string]model.Product, len(pool))
	for _, p := range pool {
		if _, ok := byID[p.ProductID]; !ok {
			byID[p.ProductID] = p
		}
	}
	excluded := IDSet(exclude)
	seen := make(map[string]struct{}, len(rows))

	out := make([]model.RankedProduct, 0, len(rows))
	for _, row := range rows {
		if row.ProductID == "" {
			continue
		}
		if _, ok := excluded[row.ProductID]; ok {
			continue
		}
		if _, ok := seen[row.ProductID]; ok {
			continue
		}
		seen[row.ProductID] = struct{}{}
		if local, ok := byID[row.ProductID]; ok {
			row.Product = local
		}
		row.Score = ClampScore(row.Score)
		row.Rank = base + len(out)
		out = append(out, row)
	}
	return out
}

// MaxRank returns the highest rank in list, 0 when empty
func MaxRank(list []model.RankedProduct) int {
	m := 0
	for _, p := range list {
		if p.Rank > m {
			m = p.Rank
		}
	}
	return m
}

// IsDense reports whether ranks run 1..n in order with no gaps
func IsDense(list []model.RankedProduct) bool {
	for i, p := range list {
		if p.Rank != i+1 {
			return false
		}
	}
	return true
}
