package model

import "time"

// ImageRef points at one product image awaiting captioning
type ImageRef struct {
	ProductID string `json:"product_id" bson:"productId" validate:"required"`
	ImageURL  string `json:"image_url" bson:"imageUrl" validate:"required"`
}

// VisionData is the caption extracted from a product image
type VisionData struct {
	ProductID   string            `json:"product_id" bson:"productId"`
	ImageURL    string            `json:"image_url" bson:"imageUrl"`
	Caption     string            `json:"caption" bson:"caption"`
	Tags        []string          `json:"tags" bson:"tags"`
	Attributes  map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	ProcessedAt time.Time         `json:"processed_at" bson:"processedAt"`
}

// VisionProcessRequest is the body of POST /vision/process
type VisionProcessRequest struct {
	UserID       string     `json:"user_id" validate:"required"`
	ResponseDate string     `json:"response_date" validate:"required"`
	Products     []ImageRef `json:"products" validate:"required,dive"`
}

// VisionProcessResponse reports how many images were captioned
type VisionProcessResponse struct {
	Processed int `json:"processed"`
}

// VisionRunRequest is the body of POST /vision/run
type VisionRunRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	ResponseDate   string `json:"response_date" validate:"required"`
	MaxConcurrency int    `json:"max_concurrency,omitempty" validate:"gte=0,lte=24"`
}

// VisionRunResponse acknowledges a background vision run
type VisionRunResponse struct {
	OK     bool `json:"ok"`
	Queued int  `json:"queued"`
}
