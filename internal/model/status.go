package model

type Status string

// Checkout creates orders as pending; later transitions belong to
// fulfilment.
const StatusPending Status = "pending"

const DefaultPaymentMethod = "cod"

// Category slugs accepted by the catalog.
var CategorySlugs = []string{"fashion", "electronics", "food", "home", "gaming"}

func ValidCategorySlug(slug string) bool {
	for _, s := range CategorySlugs {
		if s == slug {
			return true
		}
	}
	return false
}
