package model

// RankedProduct is a product placed in a user's ranked list
type RankedProduct struct {
	Product
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
	Reason         string  `json:"reason"`
	ContextVersion int     `json:"context_version,omitempty"`
}

// RankEntry is a ranking row without product details
type RankEntry struct {
	Rank      int     `json:"rank"`
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// RankingPage is the body of GET /ranking
type RankingPage struct {
	Products       []RankedProduct `json:"products"`
	Total          int             `json:"total"`
	Limit          int             `json:"limit"`
	Offset         int             `json:"offset"`
	ContextVersion int             `json:"context_version"`
}

// HasMore reports whether rows exist past this page
func (p RankingPage) HasMore() bool {
	return p.Offset+len(p.Products) < p.Total
}

// BuildRankingRequest is the body of POST /ranking/build
type BuildRankingRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	ResponseDate string `json:"response_date" validate:"required"`
	PastDays     int    `json:"past_days,omitempty" validate:"gte=0"`
}

// BuildRankingResponse returns the freshly built top list
type BuildRankingResponse struct {
	Top []RankEntry `json:"top"`
}

// ReplenishRequest is the body of POST /ranking/replenish
type ReplenishRequest struct {
	UserID            string   `json:"user_id" validate:"required"`
	ResponseDate      string   `json:"response_date" validate:"required"`
	ExcludeProductIDs []string `json:"exclude_product_ids" validate:"required"`
	PastDays          int      `json:"past_days,omitempty" validate:"gte=0"`
}

// ReplenishResponse reports how many rows the new context version holds
type ReplenishResponse struct {
	Added          int `json:"added"`
	ContextVersion int `json:"context_version,omitempty"`
}

// RankingRow is a persisted ranking entry for one (user, date)
type RankingRow struct {
	UserID         string  `json:"user_id" bson:"userId"`
	ResponseDate   string  `json:"response_date" bson:"responseDate"`
	Rank           int     `json:"rank" bson:"rank"`
	ProductID      string  `json:"product_id" bson:"productId"`
	Score          float64 `json:"score" bson:"score"`
	Reason         string  `json:"reason" bson:"reason"`
	ContextVersion int     `json:"context_version" bson:"contextVersion"`
}
