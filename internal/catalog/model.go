package catalog

import "time"

// Product is a tracked catalog item.
type Product struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	CurrentPrice float64   `json:"current_price"`
	PriceDisplay string    `json:"price_display,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListFilters narrows and orders product listings.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
}
