package airquality

import (
	"fmt"
	"math"
)

// Category is a US EPA air quality severity level, ordered from least to most severe.
type Category int

const (
	CategoryGood Category = iota
	CategoryModerate
	CategoryUnhealthyForSensitiveGroups
	CategoryUnhealthy
	CategoryVeryUnhealthy
	CategoryHazardous
)

// band is one row of the classification table. Max is inclusive.
type band struct {
	Min      int
	Max      int
	Category Category
	Name     string
	Advisory string
}

// bands must stay sorted by Max; Classify walks it in order.
var bands = []band{
	{0, 50, CategoryGood, "Good", "Air quality is good. Enjoy outdoor activities!"},
	{51, 100, CategoryModerate, "Moderate", "Air quality is acceptable. Sensitive groups should limit outdoor exertion."},
	{101, 150, CategoryUnhealthyForSensitiveGroups, "Unhealthy for Sensitive Groups", "Sensitive groups should avoid outdoor activities."},
	{151, 200, CategoryUnhealthy, "Unhealthy", "Avoid prolonged outdoor exertion."},
	{201, 300, CategoryVeryUnhealthy, "Very Unhealthy", "Stay indoors if possible."},
	{301, math.MaxInt, CategoryHazardous, "Hazardous", "Stay indoors. Use air purifiers."},
}

// Classify maps an AQI value to its category. Negative values are treated as 0.
func Classify(aqi int) Category {
	for _, b := range bands {
		if aqi <= b.Max {
			return b.Category
		}
	}
	return CategoryHazardous
}

// String returns the display name, e.g. "Unhealthy for Sensitive Groups".
func (c Category) String() string {
	if b, ok := c.band(); ok {
		return b.Name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Advisory returns the health advisory for the category.
func (c Category) Advisory() string {
	if b, ok := c.band(); ok {
		return b.Advisory
	}
	return ""
}

// Range returns the inclusive AQI range. Max is -1 for the unbounded top category.
func (c Category) Range() (lo, hi int) {
	b, ok := c.band()
	if !ok {
		return 0, 0
	}
	if b.Max == math.MaxInt {
		return b.Min, -1
	}
	return b.Min, b.Max
}

// MarshalText encodes the category as its display name.
func (c Category) MarshalText() ([]byte, error) {
	if _, ok := c.band(); !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c Category) band() (band, bool) {
	if c < CategoryGood || int(c) >= len(bands) {
		return band{}, false
	}
	return bands[c], true
}

// Categories returns all categories from least to most severe.
func Categories() []Category {
	out := make([]Category, 0, len(bands))
	for _, b := range bands {
		out = append(out, b.Category)
	}
	return out
}
