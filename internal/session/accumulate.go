package session

import "quizpicks/internal/model"

// Merge concatenates existing and incoming, keeping the first record per
// ProductID and dropping records without one. The result is always a new slice.
func Merge(existing, incoming []model.Product) []model.Product {
	out := make([]model.Product, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, batch := range [][]model.Product{existing, incoming} {
		for _, p := range batch {
			if p.ProductID == "" {
				continue
			}
			if _, dup := seen[p.ProductID]; dup {
				continue
			}
			seen[p.ProductID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
