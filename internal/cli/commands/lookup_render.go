package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/fieldtrace/internal/lineage"
)

func renderResult(w io.Writer, result *lineage.Result, format string) error {
	switch format {
	case "json":
		return renderJSON(w, result)
	case "csv":
		return renderCSV(w, result)
	default:
		return renderTable(w, result)
	}
}

func renderJSON(w io.Writer, result *lineage.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func renderTable(w io.Writer, result *lineage.Result) error {
	_, _ = fmt.Fprintf(w, "Lineage for: %s (normalized: %s)\n\n", result.Field, result.NormalizedField)

	if len(result.Paths) == 0 {
		_, _ = fmt.Fprintln(w, "(no paths)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Path", "Hop", "Dir", "Kind", "From", "To", "Conf", "Expression"})

	for i, p := range result.Paths {
		if len(p.Hops) == 0 {
			t.AppendRow(table.Row{i, 0, p.Direction, "anchor", nodeLabel(p.Anchor), "", "", ""})
			continue
		}
		for j, h := range p.Hops {
			conf := ""
			if h.Confidence > 0 {
				conf = strconv.FormatFloat(h.Confidence, 'f', 2, 64)
			}
			t.AppendRow(table.Row{
				i, j + 1, p.Direction, h.Kind,
				nodeLabel(h.From), nodeLabel(h.To), conf, truncate(h.Expression, 48),
			})
		}
		t.AppendSeparator()
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d paths)\n", len(result.Paths))
	return nil
}

func renderCSV(w io.Writer, result *lineage.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"path", "hop", "direction", "kind", "from", "to", "confidence", "expression"}); err != nil {
		return err
	}
	for i, p := range result.Paths {
		if len(p.Hops) == 0 {
			if err := cw.Write([]string{
				strconv.Itoa(i), "0", string(p.Direction), "anchor",
				nodeLabel(p.Anchor), "", "", "",
			}); err != nil {
				return err
			}
			continue
		}
		for j, h := range p.Hops {
			conf := ""
			if h.Confidence > 0 {
				conf = strconv.FormatFloat(h.Confidence, 'f', 2, 64)
			}
			if err := cw.Write([]string{
				strconv.Itoa(i), strconv.Itoa(j + 1), string(p.Direction), string(h.Kind),
				nodeLabel(h.From), nodeLabel(h.To), conf, h.Expression,
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func nodeLabel(n lineage.Node) string {
	if n.Endpoint != "" {
		return n.Endpoint
	}
	return n.Mapping + "/" + n.Instance + "." + n.Port
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
