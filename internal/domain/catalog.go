package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Country is a supported country in the reference catalog.
type Country struct {
	Code     string // ISO 3166-1 alpha-2
	Name     string
	DialCode string // without '+'
}

// DisplayName renders the country the way help text shows it, e.g. "United States (+1)".
func (c Country) DisplayName() string {
	return fmt.Sprintf("%s (+%s)", c.Name, c.DialCode)
}

// Service is a supported service in the reference catalog.
type Service struct {
	ID   string
	Name string
}

// Catalog is the read-only whitelist of countries and services.
// It is never mutated after construction.
type Catalog struct {
	countries map[string]Country
	services  map[string]Service
}

// NewCatalog builds a catalog from the given entries. Country codes are stored
// upper-case and service IDs lower-case.
func NewCatalog(countries []Country, services []Service) *Catalog {
	c := &Catalog{
		countries: make(map[string]Country, len(countries)),
		services:  make(map[string]Service, len(services)),
	}
	for _, country := range countries {
		country.Code = strings.ToUpper(country.Code)
		c.countries[country.Code] = country
	}
	for _, svc := range services {
		svc.ID = strings.ToLower(svc.ID)
		c.services[svc.ID] = svc
	}
	return c
}

// DefaultCatalog returns the built-in catalog of supported countries and services.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		[]Country{
			{Code: "US", Name: "United States", DialCode: "1"},
			{Code: "GB", Name: "United Kingdom", DialCode: "44"},
			{Code: "IN", Name: "India", DialCode: "91"},
			{Code: "ID", Name: "Indonesia", DialCode: "62"},
			{Code: "BR", Name: "Brazil", DialCode: "55"},
			{Code: "RU", Name: "Russia", DialCode: "7"},
			{Code: "DE", Name: "Germany", DialCode: "49"},
			{Code: "FR", Name: "France", DialCode: "33"},
			{Code: "JP", Name: "Japan", DialCode: "81"},
			{Code: "KR", Name: "South Korea", DialCode: "82"},
		},
		[]Service{
			{ID: "whatsapp", Name: "WhatsApp"},
			{ID: "telegram", Name: "Telegram"},
			{ID: "facebook", Name: "Facebook"},
			{ID: "instagram", Name: "Instagram"},
			{ID: "google", Name: "Google"},
			{ID: "twitter", Name: "Twitter/X"},
			{ID: "amazon", Name: "Amazon"},
			{ID: "paypal", Name: "PayPal"},
			{ID: "gmail", Name: "Gmail"},
			{ID: "outlook", Name: "Outlook"},
			{ID: "discord", Name: "Discord"},
			{ID: "tiktok", Name: "TikTok"},
			{ID: "snapchat", Name: "Snapchat"},
			{ID: "uber", Name: "Uber"},
			{ID: "netflix", Name: "Netflix"},
			{ID: "spotify", Name: "Spotify"},
		},
	)
}

// NormalizeCountryCode returns the catalog key form of a country code.
func NormalizeCountryCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeServiceID returns the catalog key form of a service identifier.
func NormalizeServiceID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// LookupCountry returns the country for a normalized code.
func (c *Catalog) LookupCountry(code string) (Country, bool) {
	country, ok := c.countries[NormalizeCountryCode(code)]
	return country, ok
}

// LookupService returns the service for a normalized identifier.
func (c *Catalog) LookupService(id string) (Service, bool) {
	svc, ok := c.services[NormalizeServiceID(id)]
	return svc, ok
}

// Validate checks a country/service pair against the whitelists and returns
// the resolved entries.
func (c *Catalog) Validate(countryCode, serviceID string) (Country, Service, error) {
	country, ok := c.LookupCountry(countryCode)
	if !ok {
		return Country{}, Service{}, fmt.Errorf("country %q: %w", countryCode, ErrInvalidCountry)
	}
	svc, ok := c.LookupService(serviceID)
	if !ok {
		return Country{}, Service{}, fmt.Errorf("service %q: %w", serviceID, ErrInvalidService)
	}
	return country, svc, nil
}

// Countries returns all countries sorted by code.
func (c *Catalog) Countries() []Country {
	out := make([]Country, 0, len(c.countries))
	for _, country := range c.countries {
		out = append(out, country)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Services returns all services sorted by identifier.
func (c *Catalog) Services() []Service {
	out := make([]Service, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
