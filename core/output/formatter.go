// Package output provides output formatting for quotes, corridors and
// conversions. This package produces human and machine-readable outputs.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"freightquote/core/catalog"
	"freightquote/core/fx"
	"freightquote/core/types"
	"freightquote/internal/errors"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCLI, FormatJSON:
		return f, nil
	case "":
		return FormatCLI, nil
	default:
		return "", errors.Input(fmt.Sprintf("unknown output format %q (want cli or json)", s))
	}
}

// Formatter renders values for one format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Quote renders a calculation result
	Quote(w io.Writer, res *types.Result) error

	// Corridors renders the corridors a tenant can quote
	Corridors(w io.Writer, tenant types.TenantID, matches []catalog.Match) error

	// Conversion renders a currency conversion
	Conversion(w io.Writer, amount types.Money, conv *fx.Conversion) error

	// RateTable renders a refreshed rate table
	RateTable(w io.Writer, table *types.RateTable) error
}

// New returns the formatter for a format
func New(f Format) Formatter {
	if f == FormatJSON {
		return jsonFormatter{}
	}
	return cliFormatter{}
}

// CorridorRow is the JSON shape of one corridor
type CorridorRow struct {
	RateCardID      string         `json:"rate_card_id"`
	Mode            types.Mode     `json:"mode"`
	Basis           types.Basis    `json:"basis"`
	Corridor        string         `json:"corridor"`
	Currency        types.Currency `json:"currency"`
	OwnerBasePriced bool           `json:"owner_base_priced,omitempty"`
}

// CorridorRows flattens matches into rows in catalog order
func CorridorRows(matches []catalog.Match) []CorridorRow {
	rows := make([]CorridorRow, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, CorridorRow{
			RateCardID:      m.Card.ID,
			Mode:            m.Card.Mode,
			Basis:           m.Card.Basis,
			Corridor:        m.Card.Corridor(),
			Currency:        m.Card.Currency,
			OwnerBasePriced: m.OwnerBasePriced,
		})
	}
	return rows
}

type jsonFormatter struct{}

func (jsonFormatter) Format() Format { return FormatJSON }

func (jsonFormatter) Quote(w io.Writer, res *types.Result) error {
	return writeJSON(w, res)
}

func (jsonFormatter) Corridors(w io.Writer, tenant types.TenantID, matches []catalog.Match) error {
	return writeJSON(w, CorridorRows(matches))
}

func (jsonFormatter) Conversion(w io.Writer, amount types.Money, conv *fx.Conversion) error {
	return writeJSON(w, conv)
}

func (jsonFormatter) RateTable(w io.Writer, table *types.RateTable) error {
	return writeJSON(w, table)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
