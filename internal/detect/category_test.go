package detect

import "testing"

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name        string
		listing     string
		description string
		want        string
	}{
		{"produce by name", "Organic Gala Apple Bag", "", "Produce"},
		{"meat by name", "Chicken Breast Family Pack", "", "Meat"},
		{"dairy by name", "2% Milk 4L", "", "Dairy"},
		{"bakery by name", "Sourdough Bread Loaf", "", "Bakery"},
		{"frozen phrase beats single words", "Frozen Pizza", "frozen meals assortment", "Frozen"},
		{"pantry", "Penne Pasta 900g", "", "Pantry"},
		{"beverages", "Sparkling Water 12 Pack", "", "Beverages"},
		{"pet food phrase", "Premium Dog Food 10kg", "dry food kibble", "Pet Food"},
		{"description contributes", "Mystery Box", "assorted fresh fruit and vegetable surplus", "Produce"},
		{"word boundary respected", "Scapple Board", "", CategoryOther},
		{"no match", "Gift Card $25", "", CategoryOther},
		{"empty", "", "", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectCategory(tt.listing, tt.description); got != tt.want {
				t.Errorf("DetectCategory(%q, %q) = %q, want %q", tt.listing, tt.description, got, tt.want)
			}
		})
	}
}

func TestCategoriesIncludesFallback(t *testing.T) {
	cats := Categories()
	if len(cats) != len(categoryKeywords)+1 {
		t.Fatalf("got %d categories", len(cats))
	}
	if cats[len(cats)-1] != CategoryOther {
		t.Errorf("fallback category missing from list")
	}
}
