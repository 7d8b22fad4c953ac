package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/engine"
)

func newTestServer(t *testing.T, authToken string) (*Server, *httptest.Server) {
	t.Helper()
	opts := engine.DefaultOptions("")
	opts.MaintenanceInterval = 0
	eng, err := engine.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	s, err := NewServer(eng, "", authToken, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

// do sends a JSON request and decodes a JSON answer into out when out is
// not nil. It returns the status code.
func do(t *testing.T, ts *httptest.Server, method, endpoint string, body, out any) int {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+endpoint, reqBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, endpoint, err)
		}
	}
	return resp.StatusCode
}

func TestHealthzAndAuth(t *testing.T) {
	_, ts := newTestServer(t, "test-secret-token")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("protected expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/sessions", nil)
	req.Header.Add("Authorization", "Bearer test-secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("protected with token expected 201, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	_, ts := newTestServer(t, "test-secret-token")
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "edgelite_active_sessions") {
		t.Errorf("metrics: status %d, body lacks edgelite collectors", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, ts := newTestServer(t, "")

	var created SessionResponse
	if code := do(t, ts, http.MethodPost, "/sessions", nil, &created); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	base := "/sessions/" + created.SessionID

	var inv InvokeResponse
	code := do(t, ts, http.MethodPost, base+"/invoke", InvokeRequest{
		Root: "R",
		IncV: []engine.Inc{
			{Source: "x", Code: "append", Target: "y"},
			{Code: "return", Target: "ok"},
		},
	}, &inv)
	if code != http.StatusOK || inv.Result != "ok" {
		t.Fatalf("invoke: status %d, result %q", code, inv.Result)
	}

	var pr PathResponse
	do(t, ts, http.MethodGet, "/path?root=R&path=-%3Ex", nil, &pr)
	if len(pr.Points) != 0 {
		t.Errorf("uncommitted write visible outside the session: %v", pr.Points)
	}

	if code := do(t, ts, http.MethodPost, base+"/commit", nil, nil); code != http.StatusNoContent {
		t.Fatalf("commit: status %d", code)
	}
	do(t, ts, http.MethodGet, "/path?root=R&path=-%3Ex", nil, &pr)
	if diff := cmp.Diff([]string{"y"}, pr.Points); diff != "" {
		t.Errorf("points after commit (-want +got):\n%s", diff)
	}

	if code := do(t, ts, http.MethodDelete, base, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete: status %d", code)
	}
	if code := do(t, ts, http.MethodDelete, base, nil, nil); code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", code)
	}
	if s.Sessions().Len() != 0 {
		t.Errorf("%d sessions left open", s.Sessions().Len())
	}
}

func TestOneShotInvokeCommits(t *testing.T) {
	_, ts := newTestServer(t, "")

	programs := []InvokeRequest{
		{Root: "R", IncV: []engine.Inc{
			{Source: "item", Code: "append", Target: "i1"},
			{Source: "item", Code: "append", Target: "i2"},
		}},
		{Root: "i1", IncV: []engine.Inc{{Source: "color", Code: "set", Target: "red"}}},
	}
	for _, prog := range programs {
		if code := do(t, ts, http.MethodPost, "/invoke", prog, &InvokeResponse{}); code != http.StatusOK {
			t.Fatalf("invoke on %s: status %d", prog.Root, code)
		}
	}

	var lr ListResponse
	code := do(t, ts, http.MethodPost, "/list", ListRequest{
		Root: "R", Dimensions: []string{"item"}, Attrs: []string{"color"},
	}, &lr)
	if code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	want := []edge.Record{
		{"item": "i1", edge.PointColumn: "i1", "color": "red"},
		{"item": "i2", edge.PointColumn: "i2", "color": nil},
	}
	if diff := cmp.Diff(want, lr.Rows); diff != "" {
		t.Errorf("list rows (-want +got):\n%s", diff)
	}

	resp, err := http.Get(ts.URL + "/dump/R")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"red"`) {
		t.Errorf("dump misses committed edge:\n%s", body)
	}
}

func TestErrorMapping(t *testing.T) {
	_, ts := newTestServer(t, "")

	var errResp map[string]string
	code := do(t, ts, http.MethodPost, "/invoke", InvokeRequest{
		Root: "R",
		IncV: []engine.Inc{{Source: "a", Code: "jmp", Target: "b"}},
	}, &errResp)
	if code != http.StatusBadRequest || !strings.Contains(errResp["error"], "jmp") {
		t.Errorf("unknown opcode: status %d, error %q", code, errResp["error"])
	}

	if code := do(t, ts, http.MethodGet, "/path?path=R-%3E", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad path: status %d, want 400", code)
	}
	if code := do(t, ts, http.MethodPost, "/sessions/nope/commit", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", code)
	}
	if code := do(t, ts, http.MethodPost, "/list", "not an object", nil); code != http.StatusBadRequest {
		t.Errorf("bad body: status %d, want 400", code)
	}
}
