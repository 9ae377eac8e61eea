package cart

// Item is one cart line joined with the product fields the storefront
// renders. Price comes from the products table at read time; checkout
// re-prices inside its own transaction and never trusts these values.
type Item struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type Cart struct {
	Items      []Item `json:"items"`
	TotalCents int    `json:"total_cents"`
}

func Total(items []Item) int {
	var t int
	for _, it := range items {
		t += it.PriceCents * it.Qty
	}
	return t
}
