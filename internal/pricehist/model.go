package pricehist

import "time"

// PricePoint is one observed price for a product.
type PricePoint struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
