package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leapstack-labs/fieldtrace/internal/lineage"
)

func sampleResult() *lineage.Result {
	anchor := lineage.Node{
		MappingID: "DEMO:m_stage",
		Mapping:   "m_stage",
		Instance:  "SQ_CLAIMS",
		Port:      "NET_AMT",
		Endpoint:  "SRC.CLAIMS.NET_AMT",
	}
	target := lineage.Node{
		MappingID: "DEMO:m_stage",
		Mapping:   "m_stage",
		Instance:  "T_STG",
		Port:      "NET_AMT",
		Endpoint:  "STG.STG_CLAIMS.NET_AMT",
	}
	return &lineage.Result{
		Field:           "NET_AMT",
		NormalizedField: "netamt",
		Paths: []lineage.Path{
			{
				Anchor:    anchor,
				Direction: lineage.DirectionDownstream,
				Hops: []lineage.Hop{
					{
						From:       anchor,
						To:         target,
						Kind:       lineage.HopExpressionDerived,
						Expression: "ROUND(NET_AMT, 2)",
					},
				},
			},
			{Anchor: anchor, Direction: lineage.DirectionUpstream},
		},
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := renderResult(&buf, sampleResult(), "json"); err != nil {
		t.Fatalf("renderResult(json) error: %v", err)
	}

	var decoded lineage.Result
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Field != "NET_AMT" || len(decoded.Paths) != 2 {
		t.Errorf("decoded field=%q paths=%d", decoded.Field, len(decoded.Paths))
	}
	if decoded.Paths[0].Hops[0].Kind != lineage.HopExpressionDerived {
		t.Errorf("hop kind = %q", decoded.Paths[0].Hops[0].Kind)
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := renderResult(&buf, sampleResult(), "csv"); err != nil {
		t.Fatalf("renderResult(csv) error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "path,hop,direction,kind,from,to,confidence,expression" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "expression-derived") || !strings.Contains(lines[1], "STG.STG_CLAIMS.NET_AMT") {
		t.Errorf("hop row = %q", lines[1])
	}
	// The hopless upstream path renders as an anchor row.
	if !strings.Contains(lines[2], "anchor") || !strings.Contains(lines[2], "SRC.CLAIMS.NET_AMT") {
		t.Errorf("anchor row = %q", lines[2])
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	if err := renderResult(&buf, sampleResult(), "table"); err != nil {
		t.Fatalf("renderResult(table) error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Lineage for: NET_AMT (normalized: netamt)",
		"ROUND(NET_AMT, 2)",
		"SRC.CLAIMS.NET_AMT",
		"(2 paths)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTableNoPaths(t *testing.T) {
	var buf bytes.Buffer
	result := &lineage.Result{Field: "X", NormalizedField: "x"}
	if err := renderResult(&buf, result, "table"); err != nil {
		t.Fatalf("renderResult error: %v", err)
	}
	if !strings.Contains(buf.String(), "(no paths)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNodeLabel(t *testing.T) {
	bound := lineage.Node{Mapping: "m", Instance: "i", Port: "p", Endpoint: "SYS.T.C"}
	if got := nodeLabel(bound); got != "SYS.T.C" {
		t.Errorf("bound label = %q", got)
	}
	unbound := lineage.Node{Mapping: "m_stage", Instance: "EXP_CLEAN", Port: "OUT1"}
	if got := nodeLabel(unbound); got != "m_stage/EXP_CLEAN.OUT1" {
		t.Errorf("unbound label = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 48); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 60)
	got := truncate(long, 48)
	if len(got) != 48 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate(long) = %q (len %d)", got, len(got))
	}
}
