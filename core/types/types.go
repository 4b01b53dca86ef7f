// Package types defines core domain types shared across all layers.
// This package holds type definitions and their local invariants only;
// pricing arithmetic lives in core/pricing.
package types

import (
	"fmt"
	"strings"
)

// TenantID identifies a tenant (platform owner or reseller)
type TenantID string

// String returns the string representation
func (t TenantID) String() string {
	return string(t)
}

// Mode is a transport mode
type Mode string

const (
	ModeAir  Mode = "air"
	ModeSea  Mode = "sea"
	ModeRoad Mode = "road"
)

// String returns the string representation of the mode
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if the mode is a known mode
func (m Mode) IsValid() bool {
	switch m {
	case ModeAir, ModeSea, ModeRoad:
		return true
	default:
		return false
	}
}

// ParseMode normalises a mode string
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown transport mode %q (use air, sea or road)", s)
	}
	return m, nil
}

// Basis is the unit a tier price is quoted against
type Basis string

const (
	BasisPerKg Basis = "per_kg"
	BasisPerM3 Basis = "per_m3"
)

// String returns the string representation of the basis
func (b Basis) String() string {
	return string(b)
}

// IsValid checks if the basis is known
func (b Basis) IsValid() bool {
	return b == BasisPerKg || b == BasisPerM3
}

// Unit returns the measure name used in line item descriptions
func (b Basis) Unit() string {
	if b == BasisPerM3 {
		return "m3"
	}
	return "kg"
}

// ParseBasis normalises a basis string
func ParseBasis(s string) (Basis, error) {
	b := Basis(strings.ToLower(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", fmt.Errorf("unknown rate basis %q (use per_kg or per_m3)", s)
	}
	return b, nil
}

// Location is one end of a corridor
type Location struct {
	// Country is required
	Country string `json:"country"`

	// City is optional
	City string `json:"city,omitempty"`
}

// String renders "City, Country" or just the country
func (l Location) String() string {
	if l.City == "" {
		return l.Country
	}
	return l.City + ", " + l.Country
}
