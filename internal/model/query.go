package model

// GenerateQueriesRequest is the body of POST /queries/generate
type GenerateQueriesRequest struct {
	UserID          string         `json:"user_id" validate:"required"`
	ResponseDate    string         `json:"response_date" validate:"required"`
	BuyerAttributes map[string]any `json:"buyer_attributes,omitempty"`
	GenderAffinity  string         `json:"gender_affinity,omitempty"`
}

// GenerateQueriesResponse carries the generated search queries
type GenerateQueriesResponse struct {
	Queries []string `json:"queries"`
}
