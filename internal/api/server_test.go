package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fieldtrace/internal/engine"
	"github.com/leapstack-labs/fieldtrace/internal/state"
	"github.com/leapstack-labs/fieldtrace/internal/testutil"
)

const claimsExportXML = `<POWERMART><FOLDER NAME="DEMO">
  <SOURCE NAME="CLAIMS" DBDNAME="SRC">
    <SOURCEFIELD NAME="NET_AMT" DATATYPE="decimal"/>
  </SOURCE>
  <TARGET NAME="STG_CLAIMS" DBDNAME="STG">
    <TARGETFIELD NAME="NET_AMT" DATATYPE="decimal"/>
  </TARGET>
  <MAPPING NAME="m_stage_claims">
    <INSTANCE NAME="SQ_CLAIMS" TYPE="Source Definition" TRANSFORMATION_NAME="CLAIMS"/>
    <INSTANCE NAME="T_STG" TYPE="Target Definition" REFOBJECTNAME="STG_CLAIMS"/>
    <CONNECTOR FROMINSTANCE="SQ_CLAIMS" FROMPORT="NET_AMT" TOINSTANCE="T_STG" TOPORT="NET_AMT"/>
  </MAPPING>
  <WORKFLOW NAME="wf_claims_daily">
    <SESSION MAPPINGNAME="m_stage_claims"/>
  </WORKFLOW>
</FOLDER></POWERMART>`

func setupTestServer(t *testing.T, exports ...string) *Server {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	dir := t.TempDir()
	for i, xml := range exports {
		testutil.WriteFile(t, dir, "export_"+string(rune('a'+i))+".xml", xml)
	}

	store := state.NewSQLiteStore(logger)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())

	eng, err := engine.New(engine.Config{
		Store:       store,
		MappingsDir: dir,
		Logger:      logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	return NewServer(Config{Engine: eng, MappingsDir: dir, Logger: logger})
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)

	rec := doRequest(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, 0, resp.Mappings) // nothing ingested yet
}

func TestIngestLookupRoundtrip(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)

	rec := doRequest(t, s, http.MethodPost, "/api/ingest")
	require.Equal(t, http.StatusOK, rec.Code)

	var report engine.IngestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Mappings)
	assert.Empty(t, report.Errors)

	rec = doRequest(t, s, http.MethodGet, "/api/lookup?field=NET_AMT&direction=downstream")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "SRC.CLAIMS.NET_AMT")
	assert.Contains(t, body, "STG.STG_CLAIMS.NET_AMT")
	assert.Contains(t, body, "direct-edge")
}

func TestLookupValidation(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodPost, "/api/ingest").Code)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"missing field", "/api/lookup", http.StatusBadRequest},
		{"bad direction", "/api/lookup?field=NET_AMT&direction=sideways", http.StatusBadRequest},
		{"bad max_hops", "/api/lookup?field=NET_AMT&max_hops=zero", http.StatusBadRequest},
		{"negative max_hops", "/api/lookup?field=NET_AMT&max_hops=-1", http.StatusBadRequest},
		{"unknown field", "/api/lookup?field=NO_SUCH_COLUMN", http.StatusNotFound},
		{"ok", "/api/lookup?field=NET_AMT", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, rec.Body.String(), "error")
			}
		})
	}
}

func TestLookupCSVFormat(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodPost, "/api/ingest").Code)

	rec := doRequest(t, s, http.MethodGet, "/api/lookup?field=NET_AMT&direction=downstream&format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "path,hop,direction,kind,from,to,confidence,expression", lines[0])
}

func TestHandleReset(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodPost, "/api/ingest").Code)

	rec := doRequest(t, s, http.MethodPost, "/api/reset")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/lookup?field=NET_AMT")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/health")
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Mappings)
}

func TestDebugEndpoints(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodPost, "/api/ingest").Code)

	rec := doRequest(t, s, http.MethodGet, "/api/debug/mappings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "m_stage_claims")

	rec = doRequest(t, s, http.MethodGet, "/api/debug/endpoints")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "claims.netamt")
	assert.Contains(t, body, `"count": 2`)
}

func TestDebugWorkflows(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodPost, "/api/ingest").Code)

	rec := doRequest(t, s, http.MethodGet, "/api/debug/workflows")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "wf_claims_daily")
	assert.Contains(t, body, "DEMO:m_stage_claims")
	assert.Contains(t, body, `"count": 1`)
}

func TestDebugEdges(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodPost, "/api/ingest").Code)

	rec := doRequest(t, s, http.MethodGet, "/api/debug/edges")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "SQ_CLAIMS.NET_AMT")
	assert.Contains(t, body, "T_STG.NET_AMT")
	assert.Contains(t, body, `"count": 1`)

	// Filtered to a mapping id that does not exist.
	rec = doRequest(t, s, http.MethodGet, "/api/debug/edges?mapping=DEMO:m_other")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count": 0`)

	rec = doRequest(t, s, http.MethodGet, "/api/debug/edges?mapping=DEMO:m_stage_claims")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count": 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	s := setupTestServer(t, claimsExportXML)

	rec := doRequest(t, s, http.MethodGet, "/api/ingest")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
