package export

import (
	"errors"
	"fmt"
	"strings"
)

// Column describes one field of a report. Key is the machine name used as the CSV
// header; Label and Weight only affect the PDF table.
type Column struct {
	Key    string
	Label  string
	Weight float64
}

// Dataset is the content of a rendered report.
type Dataset struct {
	Title   string
	Notes   []string
	Columns []Column
	Rows    []map[string]string
	// Highlight marks rows the PDF renderer shades.
	Highlight func(row map[string]string) bool
}

var errNoColumns = errors.New("report requires at least one column")

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat returns the renderer registered for format ("csv" or "pdf").
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return CSV{}, nil
	case "pdf":
		return PDF{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (d Dataset) keys() []string {
	keys := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		keys[i] = col.Key
	}
	return keys
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = row[col.Key]
	}
	return out
}

func (c Column) label() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}
