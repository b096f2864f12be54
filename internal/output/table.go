package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// TableFormatter renders snapshots as ASCII tables.
type TableFormatter struct{}

// FormatClients renders tracked clients as a table.
func (f *TableFormatter) FormatClients(clients []guard.ClientSnapshot) (string, error) {
	if len(clients) == 0 {
		return "(no tracked clients)", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Client", "Reputation", "Violations", "Suspicious", "Auth Fails", "Blocks", "Req/Hour", "Last Seen"})

	for _, c := range clients {
		t.AppendRow(table.Row{
			c.Key,
			c.Reputation,
			c.RecentViolations,
			c.SuspiciousHits,
			c.AuthFailures,
			c.BlockCount,
			c.RequestsLastHour,
			c.LastSeen.UTC().Format(time.RFC3339),
		})
	}

	t.AppendFooter(table.Row{fmt.Sprintf("%d clients", len(clients)), "", "", "", "", "", "", ""})
	return t.Render(), nil
}

// FormatBlocks renders active blocks as a table.
func (f *TableFormatter) FormatBlocks(blocks []guard.BlockSnapshot) (string, error) {
	if len(blocks) == 0 {
		return "(no active blocks)", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Client", "Reason", "Blocked At", "Unblock At", "Remaining"})

	for _, b := range blocks {
		t.AppendRow(table.Row{
			b.Key,
			string(b.Reason),
			b.BlockedAt.UTC().Format(time.RFC3339),
			b.UnblockAt.UTC().Format(time.RFC3339),
			b.Remaining.Round(time.Second).String(),
		})
	}

	t.AppendFooter(table.Row{fmt.Sprintf("%d blocks", len(blocks)), "", "", "", ""})
	return t.Render(), nil
}

// FormatStats renders the engine and decision counters as a two-column table.
func (f *TableFormatter) FormatStats(view StatsView) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Counter", "Value"})

	t.AppendRow(table.Row{"tracked clients", view.Engine.TrackedClients})
	t.AppendRow(table.Row{"active blocks", view.Engine.ActiveBlocks})
	t.AppendRow(table.Row{"evictions", view.Engine.Evictions})
	t.AppendRow(table.Row{"window rebuilds", view.Engine.Rebuilds})

	if d := view.Decisions; d != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"allowed", d.Allowed})
		t.AppendRow(table.Row{"denied", d.Denied})
		t.AppendRow(table.Row{"bypassed", d.Bypassed})
		t.AppendRow(table.Row{"blocks issued", d.Blocks})
		t.AppendRow(table.Row{"blocks lifted", d.Unblocks})

		for _, cat := range sortedCategories(d.ByCategory) {
			c := d.ByCategory[cat]
			t.AppendRow(table.Row{fmt.Sprintf("%s allowed/denied", cat), fmt.Sprintf("%d/%d", c.Allowed, c.Denied)})
		}
		for _, reason := range sortedKeys(d.ByReason) {
			t.AppendRow(table.Row{fmt.Sprintf("denied %s", reason), d.ByReason[reason]})
		}
	}

	return t.Render(), nil
}

// PolicyTable renders the effective rate limit policies, one category per
// row. Used by config validation output.
func PolicyTable(cfg guard.Config) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Calls/Min", "Calls/Hour"})

	for _, cat := range sortedCategories(cfg.Policies) {
		p := cfg.Policies[cat]
		t.AppendRow(table.Row{string(cat), p.CallsPerMinute, p.CallsPerHour})
	}

	t.AppendFooter(table.Row{
		"burst",
		fmt.Sprintf("%d per %s", cfg.DDoS.BurstThreshold, cfg.DDoS.BurstWindow),
		fmt.Sprintf("block %s..%s", cfg.DDoS.BaseBlockDuration, cfg.DDoS.MaxBlockDuration),
	})
	return t.Render()
}

func sortedCategories[V any](m map[guard.Category]V) []guard.Category {
	out := make([]guard.Category, 0, len(m))
	for cat := range m {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
