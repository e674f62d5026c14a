package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/leapstack-labs/fieldtrace/internal/engine"
	"github.com/leapstack-labs/fieldtrace/internal/graph"
	"github.com/leapstack-labs/fieldtrace/internal/lineage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	Mappings  int    `json:"mappings"`
	Endpoints int    `json:"endpoints"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	resp := healthResponse{
		Status:    "ok",
		Version:   s.engine.Version(),
		Mappings:  snap.MappingCount(),
		Endpoints: snap.EndpointCount(),
	}
	if t := s.engine.BuiltAt(); !t.IsZero() {
		resp.BuiltAt = t.UTC().Format("2006-01-02T15:04:05Z")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing required query parameter: field"))
		return
	}

	opts := engine.LookupOptions{Direction: lineage.DirectionBoth}
	if d := r.URL.Query().Get("direction"); d != "" {
		dir, err := lineage.ParseDirection(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Direction = dir
	}
	if h := r.URL.Query().Get("max_hops"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max_hops: %q", h))
			return
		}
		opts.MaxHops = n
	}

	result, err := s.engine.Lookup(r.Context(), field, opts)
	if err != nil {
		var notFound *lineage.FieldNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeLookupCSV(w, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeLookupCSV flattens the result to one row per hop. Zero-hop paths
// still emit an anchor row so the field's bindings are visible.
func writeLookupCSV(w http.ResponseWriter, result *lineage.Result) {
	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"path", "hop", "direction", "kind", "from", "to", "confidence", "expression"})
	for i, p := range result.Paths {
		if len(p.Hops) == 0 {
			_ = cw.Write([]string{
				strconv.Itoa(i), "0", string(p.Direction), "anchor",
				p.Anchor.Endpoint, "", "", "",
			})
			continue
		}
		for j, h := range p.Hops {
			conf := ""
			if h.Confidence > 0 {
				conf = strconv.FormatFloat(h.Confidence, 'f', 2, 64)
			}
			_ = cw.Write([]string{
				strconv.Itoa(i), strconv.Itoa(j + 1), string(p.Direction), string(h.Kind),
				hopEnd(h.From), hopEnd(h.To), conf, h.Expression,
			})
		}
	}
	cw.Flush()
}

func hopEnd(n lineage.Node) string {
	if n.Endpoint != "" {
		return n.Endpoint
	}
	return n.Mapping + "/" + n.Instance + "." + n.Port
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.IngestDir(r.Context())
	if err != nil {
		var malformed *graph.MalformedGraphError
		if errors.As(err, &malformed) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type debugMapping struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Folder string `json:"folder,omitempty"`
}

func (s *Server) handleDebugMappings(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	mappings := snap.Mappings()
	out := make([]debugMapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, debugMapping{ID: m.ID, Name: m.Name, Folder: m.Folder})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(out),
		"mappings": out,
	})
}

type debugWorkflow struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Mappings []string `json:"mappings"`
}

func (s *Server) handleDebugWorkflows(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	workflows := snap.Workflows()
	out := make([]debugWorkflow, 0, len(workflows))
	for _, wf := range workflows {
		out = append(out, debugWorkflow{ID: wf.ID, Name: wf.Name, Mappings: wf.MappingIDs})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(out),
		"workflows": out,
	})
}

type debugEdge struct {
	Mapping    string `json:"mapping"`
	From       string `json:"from"`
	To         string `json:"to"`
	Expression string `json:"expression,omitempty"`
}

// handleDebugEdges dumps every intra-mapping edge, optionally filtered to one
// mapping with ?mapping=<id>.
func (s *Server) handleDebugEdges(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	filter := r.URL.Query().Get("mapping")

	label := func(portID string) (mappingID, name string) {
		p, ok := snap.Port(portID)
		if !ok {
			return "", portID
		}
		inst, ok := snap.Instance(p.InstanceID)
		if !ok {
			return "", p.Name
		}
		return inst.MappingID, inst.Name + "." + p.Name
	}

	edges := snap.Edges()
	out := make([]debugEdge, 0, len(edges))
	for _, e := range edges {
		mappingID, from := label(e.FromPortID)
		_, to := label(e.ToPortID)
		if filter != "" && mappingID != filter {
			continue
		}
		out = append(out, debugEdge{
			Mapping:    mappingID,
			From:       from,
			To:         to,
			Expression: e.Expression,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(out),
		"edges": out,
	})
}

type debugEndpoint struct {
	Endpoint string `json:"endpoint"`
	Key      string `json:"key"`
	Role     string `json:"role"`
	Mapping  string `json:"mapping"`
	Instance string `json:"instance"`
	Port     string `json:"port"`
}

func (s *Server) handleDebugEndpoints(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	bindings := snap.AllBindings()
	out := make([]debugEndpoint, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, debugEndpoint{
			Endpoint: b.Endpoint.FullName(),
			Key:      b.Endpoint.NormalizedKey(),
			Role:     string(b.Endpoint.Role),
			Mapping:  b.MappingID,
			Instance: b.InstanceName,
			Port:     b.Port.Name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(out),
		"endpoints": out,
	})
}
