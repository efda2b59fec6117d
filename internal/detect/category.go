package detect

import (
	"regexp"
	"strings"
)

// CategoryOther is assigned when no keyword category matches.
const CategoryOther = "Other"

// categoryKeywords maps each category to the keywords that vote for it.
// Multi-word keywords match as whole phrases.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"Produce", []string{
		"apple", "banana", "orange", "grape", "berry", "strawberry", "blueberry", "raspberry",
		"lettuce", "spinach", "kale", "carrot", "potato", "onion", "tomato", "cucumber",
		"pepper", "broccoli", "cauliflower", "celery", "avocado", "lemon", "lime",
		"peach", "pear", "plum", "cherry", "melon", "watermelon", "cantaloupe",
		"cabbage", "zucchini", "squash", "mushroom", "garlic", "ginger", "herbs",
		"salad", "organic", "fresh", "produce", "fruit", "vegetable", "veggie",
	}},
	{"Meat", []string{
		"chicken", "beef", "pork", "turkey", "lamb", "fish", "salmon", "tuna",
		"ground", "steak", "roast", "chops", "wings", "thighs", "breast",
		"bacon", "ham", "sausage", "deli", "meat", "protein", "fresh meat",
		"ribeye", "sirloin", "tenderloin", "brisket", "ribs", "drumstick",
	}},
	{"Dairy", []string{
		"milk", "cheese", "yogurt", "butter", "cream", "sour cream", "cottage cheese",
		"cheddar", "mozzarella", "parmesan", "swiss", "brie", "goat cheese",
		"ice cream", "frozen yogurt", "dairy", "lactose", "organic milk",
		"almond milk", "oat milk", "coconut milk", "eggs", "egg",
	}},
	{"Bakery", []string{
		"bread", "buns", "rolls", "bagels", "muffins", "croissant", "pastry",
		"cake", "cookies", "pie", "tart", "donut", "danish", "scone",
		"bakery", "fresh baked", "artisan", "sourdough", "whole grain",
		"gluten free", "baguette", "focaccia", "pretzel",
	}},
	{"Frozen", []string{
		"frozen", "ice cream", "frozen yogurt", "frozen fruit", "frozen vegetables",
		"frozen meals", "frozen pizza", "frozen chicken", "frozen fish",
		"ice", "popsicle", "sorbet", "gelato", "frozen berries", "frozen peas",
	}},
	{"Pantry", []string{
		"pasta", "rice", "beans", "lentils", "quinoa", "oats", "cereal",
		"flour", "sugar", "salt", "pepper", "spices", "oil", "vinegar",
		"sauce", "dressing", "condiment", "canned", "jarred", "dried",
		"nuts", "seeds", "honey", "syrup", "jam", "jelly", "peanut butter",
	}},
	{"Snacks", []string{
		"chips", "crackers", "popcorn", "pretzels", "nuts", "trail mix",
		"granola", "energy bar", "protein bar", "candy", "chocolate",
		"gum", "mints", "cookies", "snack", "treats", "jerky",
	}},
	{"Beverages", []string{
		"water", "juice", "soda", "pop", "coffee", "tea", "energy drink",
		"sports drink", "kombucha", "smoothie", "beer", "wine", "alcohol",
		"sparkling", "coconut water", "drink", "beverage", "bottle", "can",
	}},
	{"Health & Beauty", []string{
		"shampoo", "conditioner", "soap", "lotion", "cream", "deodorant",
		"toothpaste", "toothbrush", "vitamins", "supplements", "medicine",
		"bandages", "first aid", "beauty", "cosmetics", "skincare", "haircare",
	}},
	{"Pet Food", []string{
		"dog food", "cat food", "pet food", "dog treats", "cat treats",
		"pet treats", "dog", "cat", "pet", "kibble", "wet food", "dry food",
	}},
}

var keywordPatterns = compileKeywordPatterns()

func compileKeywordPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, cat := range categoryKeywords {
		for _, kw := range cat.keywords {
			if _, ok := patterns[kw]; ok {
				continue
			}
			patterns[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		}
	}
	return patterns
}

// DetectCategory assigns a category by counting whole-word keyword matches in
// the listing name and description and returning the highest-scoring category.
// Ties resolve in declaration order. Returns CategoryOther when nothing
// matches.
func DetectCategory(name, description string) string {
	text := strings.ToLower(name)
	if description != "" {
		text += " " + strings.ToLower(description)
	}

	best := CategoryOther
	bestScore := 0
	for _, cat := range categoryKeywords {
		score := 0
		for _, kw := range cat.keywords {
			score += len(keywordPatterns[kw].FindAllStringIndex(text, -1))
		}
		if score > bestScore {
			best = cat.name
			bestScore = score
		}
	}
	return best
}

// Categories lists every assignable category including the fallback.
func Categories() []string {
	out := make([]string, 0, len(categoryKeywords)+1)
	for _, cat := range categoryKeywords {
		out = append(out, cat.name)
	}
	return append(out, CategoryOther)
}
