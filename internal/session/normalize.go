package session

import (
	"encoding/json"
	"strconv"
	"strings"

	"quizpicks/internal/model"
)

const (
	defaultCurrency = "USD"
	defaultVendor   = "Unknown"
)

// path is a sequence of map keys (string) and list indexes (int)
type path []any

var (
	imagePaths = []path{
		{"featuredImage", "url"},
		{"images", "edges", 0, "node", "url"},
		{"images", 0, "url"},
		{"images", 0},
	}
	pricePaths = []path{
		{"priceRange", "minVariantPrice", "amount"},
		{"priceRangeV2", "minVariantPrice", "amount"},
		{"minPrice"},
		{"price", "amount"},
		{"price"},
		{"variants", 0, "price", "amount"},
		{"variants", "edges", 0, "node", "price", "amount"},
	}
	currencyPaths = []path{
		{"priceRange", "minVariantPrice", "currencyCode"},
		{"priceRangeV2", "minVariantPrice", "currencyCode"},
		{"currencyCode"},
		{"price", "currencyCode"},
		{"currency"},
		{"variants", 0, "price", "currencyCode"},
		{"variants", "edges", 0, "node", "price", "currencyCode"},
	}
	vendorPaths = []path{
		{"vendor"},
		{"vendorName"},
		{"brand"},
		{"merchant", "name"},
		{"store", "name"},
	}
	urlPaths = []path{
		{"onlineStoreUrl"},
		{"url"},
		{"webUrl"},
	}
	idPaths    = []path{{"id"}, {"product_id"}}
	titlePaths = []path{{"title"}, {"name"}}
)

// Normalize maps one catalogue item of any known shape onto a Product.
// It never fails: missing fields stay empty and the caller drops records
// without a ProductID.
func Normalize(raw any) model.Product {
	if p, ok := raw.(model.Product); ok {
		if p.Currency == "" {
			p.Currency = defaultCurrency
		}
		if p.Vendor == "" {
			p.Vendor = defaultVendor
		}
		if p.Images == nil {
			p.Images = []string{}
		}
		return p
	}

	p := model.Product{
		ProductID:    firstString(raw, idPaths),
		Title:        firstString(raw, titlePaths),
		Vendor:       firstString(raw, vendorPaths),
		Price:        firstString(raw, pricePaths),
		Currency:     firstString(raw, currencyPaths),
		URL:          firstString(raw, urlPaths),
		ThumbnailURL: firstString(raw, imagePaths),
		Images:       imageList(raw),
		Raw:          raw,
	}
	if p.Vendor == "" {
		p.Vendor = defaultVendor
	}
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	if p.URL == "" {
		domain := asString(dig(raw, path{"store", "domain"}))
		handle := asString(dig(raw, path{"handle"}))
		if domain != "" && handle != "" {
			p.URL = "https://" + domain + "/products/" + handle
		}
	}
	return p
}

// NormalizeAll normalizes every item and drops those without an id
func NormalizeAll(items []any) []model.Product {
	out := make([]model.Product, 0, len(items))
	for _, item := range items {
		p := Normalize(item)
		if p.ProductID == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ContainerItems flattens the container shapes a catalogue page may arrive in:
// a plain list, a connection with edges/nodes, or an object wrapping the list
// under items, results or products.
func ContainerItems(v any) []any {
	switch c := v.(type) {
	case nil:
		return nil
	case []any:
		return c
	case []map[string]any:
		out := make([]any, len(c))
		for i, m := range c {
			out[i] = m
		}
		return out
	case []model.Product:
		out := make([]any, len(c))
		for i, p := range c {
			out[i] = p
		}
		return out
	case map[string]any:
		if edges, ok := c["edges"].([]any); ok {
			out := make([]any, 0, len(edges))
			for _, e := range edges {
				if node := dig(e, path{"node"}); node != nil {
					out = append(out, node)
				}
			}
			return out
		}
		for _, key := range []string{"nodes", "items", "results", "products"} {
			if inner, ok := c[key]; ok && inner != nil {
				return ContainerItems(inner)
			}
		}
	}
	return nil
}

func dig(v any, p path) any {
	cur := v
	for _, step := range p {
		if cur == nil {
			return nil
		}
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = m[key]
		case int:
			list, ok := cur.([]any)
			if !ok || key >= len(list) {
				return nil
			}
			cur = list[key]
		}
	}
	return cur
}

func firstString(raw any, candidates []path) string {
	for _, p := range candidates {
		if s := asString(dig(raw, p)); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

func imageList(raw any) []string {
	images := []string{}
	if edges, ok := dig(raw, path{"images", "edges"}).([]any); ok {
		for _, e := range edges {
			if u := asString(dig(e, path{"node", "url"})); u != "" {
				images = append(images, u)
			}
		}
		return images
	}
	if list, ok := dig(raw, path{"images"}).([]any); ok {
		for _, item := range list {
			u := asString(item)
			if u == "" {
				u = asString(dig(item, path{"url"}))
			}
			if u != "" {
				images = append(images, u)
			}
		}
	}
	return images
}
