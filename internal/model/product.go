package model

// ProductSource tags where a stored product was discovered
type ProductSource string

const (
	SourceSearch      ProductSource = "search"
	SourceRecommended ProductSource = "recommended"
)

// Product is a normalized commerce item
type Product struct {
	ProductID    string   `json:"product_id" bson:"productId"`
	Title        string   `json:"title" bson:"title"`
	Vendor       string   `json:"vendor" bson:"vendor"`
	Price        string   `json:"price" bson:"price"` // decimal string
	Currency     string   `json:"currency" bson:"currency"`
	URL          string   `json:"url,omitempty" bson:"url,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty" bson:"thumbnailUrl,omitempty"`
	Images       []string `json:"images" bson:"images"`
	// Raw keeps the original catalogue payload
	Raw any `json:"raw,omitempty" bson:"raw,omitempty"`
}

// PrimaryImage returns the thumbnail, falling back to the first gallery image
func (p Product) PrimaryImage() string {
	if p.ThumbnailURL != "" {
		return p.ThumbnailURL
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

// StoreProductsRequest is the body of POST /products/store and /products/recommended/store
type StoreProductsRequest struct {
	UserID       string        `json:"user_id" validate:"required"`
	ResponseDate string        `json:"response_date" validate:"required"`
	Source       ProductSource `json:"source,omitempty"`
	Results      []Product     `json:"results" validate:"required"`
}

// StoreProductsResponse reports how many products were persisted
type StoreProductsResponse struct {
	OK     bool `json:"ok"`
	Stored int  `json:"stored"`
}
