package output

import (
	"encoding/json"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// JSONFormatter renders snapshots as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatClients renders tracked clients as JSON.
func (f *JSONFormatter) FormatClients(clients []guard.ClientSnapshot) (string, error) {
	return f.marshal(clients)
}

// FormatBlocks renders active blocks as JSON.
func (f *JSONFormatter) FormatBlocks(blocks []guard.BlockSnapshot) (string, error) {
	return f.marshal(blocks)
}

// FormatStats renders the counters as JSON.
func (f *JSONFormatter) FormatStats(view StatsView) (string, error) {
	return f.marshal(view)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
