package flashfood

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

type storesResponse struct {
	Data []rawStore `json:"data"`
}

type itemsResponse struct {
	Data map[string][]rawItem `json:"data"`
}

type rawStore struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address struct {
		FullAddress string `json:"fullAddress"`
	} `json:"address"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Items []rawItem `json:"items"`
}

type rawItem struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	OriginalPrice     flexPrice `json:"originalPrice"`
	Price             flexPrice `json:"price"`
	QuantityAvailable int       `json:"quantityAvailable"`
	ExpiryDate        string    `json:"expiryDate"`
	Image             *struct {
		URL string `json:"url"`
	} `json:"image"`
}

// flexPrice is a dollar amount the API reports either as a JSON number or a
// quoted string. Unparseable values decode to zero rather than failing the
// whole payload.
type flexPrice float64

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*p = 0
		return nil
	}
	*p = flexPrice(v)
	return nil
}

// Cents converts the dollar amount to integer cents.
func (p flexPrice) Cents() int64 {
	return int64(math.Round(float64(p) * 100))
}

func (s rawStore) toDomain(regionKey string) domain.Store {
	name := s.Name
	if name == "" {
		name = "Unknown Store"
	}
	return domain.Store{
		ExternalID: s.ID,
		Name:       name,
		Address:    s.Address.FullAddress,
		Region:     regionKey,
		Latitude:   s.Location.Latitude,
		Longitude:  s.Location.Longitude,
	}
}

func (i rawItem) toDomain(storeID string) domain.Listing {
	name := i.Name
	if name == "" {
		name = "Unknown Item"
	}

	originalCents := i.OriginalPrice.Cents()
	priceCents := i.Price.Cents()

	var expiry time.Time
	if i.ExpiryDate != "" {
		if t, err := time.Parse(time.RFC3339, i.ExpiryDate); err == nil {
			expiry = t.UTC()
		}
	}

	var imageURL string
	if i.Image != nil {
		imageURL = i.Image.URL
	}

	return domain.Listing{
		StoreID:            storeID,
		ExternalID:         i.ID,
		Name:               name,
		Description:        i.Description,
		Category:           i.Category,
		OriginalPriceCents: originalCents,
		PriceCents:         priceCents,
		DiscountPercent:    domain.ComputeDiscountPercent(originalCents, priceCents),
		QuantityAvailable:  i.QuantityAvailable,
		ExpiryDate:         expiry,
		ImageURL:           imageURL,
	}
}
