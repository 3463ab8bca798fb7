package enums

import "fmt"

// ItemUnit is the billing granularity of an item's price.
type ItemUnit string

const (
	ItemUnitPerDay  ItemUnit = "per_day"
	ItemUnitPerHour ItemUnit = "per_hour"
)

var validItemUnits = []ItemUnit{
	ItemUnitPerDay,
	ItemUnitPerHour,
}

// String implements fmt.Stringer.
func (u ItemUnit) String() string {
	return string(u)
}

// IsValid reports whether the value is a known ItemUnit.
func (u ItemUnit) IsValid() bool {
	for _, candidate := range validItemUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseItemUnit converts raw input into an ItemUnit.
func ParseItemUnit(value string) (ItemUnit, error) {
	for _, candidate := range validItemUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item unit %q", value)
}
