package catalog

import (
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. ID is the Strapi documentId.
type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Description  string
	ThumbnailURL string
}

// LineItem is a product in a cart joined with its product data
type LineItem struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Cost is UnitPrice * Quantity
func (li LineItem) Cost() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Wire format. Strapi wraps every payload in {"data": ...}.

type envelope[T any] struct {
	Data T `json:"data"`
}

type documentDTO struct {
	DocumentID string `json:"documentId"`
}

type productDTO struct {
	DocumentID  string          `json:"documentId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Picture     *mediaDTO       `json:"picture"`
}

type mediaDTO struct {
	URL     string `json:"url"`
	Formats struct {
		Thumbnail *struct {
			URL string `json:"url"`
		} `json:"thumbnail"`
	} `json:"formats"`
}

type lineItemDTO struct {
	DocumentID string          `json:"documentId"`
	Quantity   decimal.Decimal `json:"quantity"`
	Product    *productDTO     `json:"product"`
}

func (p productDTO) toDomain() Product {
	product := Product{
		ID:          p.DocumentID,
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
	}
	if p.Picture != nil {
		product.ThumbnailURL = p.Picture.URL
		if p.Picture.Formats.Thumbnail != nil && p.Picture.Formats.Thumbnail.URL != "" {
			product.ThumbnailURL = p.Picture.Formats.Thumbnail.URL
		}
	}
	return product
}

func (li lineItemDTO) toDomain() LineItem {
	item := LineItem{
		ID:       li.DocumentID,
		Quantity: int(li.Quantity.IntPart()),
	}
	if li.Product != nil {
		item.ProductID = li.Product.DocumentID
		item.Name = li.Product.Name
		item.UnitPrice = li.Product.Price
	}
	return item
}
