package catalog

import "github.com/shopspring/decimal"

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// ProductQuery filters the product listing. Zero values mean "no filter".
type ProductQuery struct {
	CategoryID int64
	Name       string
	Page       int
}

type ProductPage struct {
	Items     []Product `json:"items"`
	Page      int       `json:"page"`
	PageCount int       `json:"page_count"`
}
