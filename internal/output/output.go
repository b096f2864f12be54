package output

import (
	"fmt"
	"strings"

	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/stats"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// StatsView is the aggregate the stats formatter renders. Its fields line up
// with the admin API response, so the CLI decodes straight into it.
type StatsView struct {
	Engine    guard.Stats     `json:"engine"`
	Decisions *stats.Snapshot `json:"decisions,omitempty"`
}

// Formatter renders engine snapshots for the CLI.
type Formatter interface {
	FormatClients(clients []guard.ClientSnapshot) (string, error)
	FormatBlocks(blocks []guard.BlockSnapshot) (string, error)
	FormatStats(view StatsView) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	default:
		return &TableFormatter{}
	}
}
