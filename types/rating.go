package types

import "time"

// ProductRatingSummary is the derived rating of a product. It can always be
// rebuilt from the review records.
type ProductRatingSummary struct {
	Product       string    `json:"product_id"`
	OverallRating float64   `json:"overall_rating"`
	ReviewCount   int       `json:"review_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}
