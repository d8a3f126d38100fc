package cart

// Item is a line item.
type Item struct {
	Price int
	Qty   int
}

// Total sums priced quantities, skipping non-positive ones.
func Total(items []Item) int {
	sum := 0
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		sum += it.Price * it.Qty
	}
	return sum
}

// Cart holds items.
type Cart struct {
	items []Item
}

// Empty reports whether the cart has no items.
func (c *Cart) Empty() bool {
	return len(c.items) == 0
}
