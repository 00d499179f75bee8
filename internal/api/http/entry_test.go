package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MerlinMa/pals/internal/entry"
	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/filter"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/model"
	"github.com/MerlinMa/pals/internal/observability"
	"github.com/MerlinMa/pals/internal/server"
)

const statsPayload = `{
	"ExtractionType": "PeriodicStatistics",
	"PALS": {"RequestKey": 9, "RunKey": 3},
	"InputTags": [{"Key": 1, "Name": "Pressure"}],
	"PeriodicStatistics": {
		"Timestamps": ["2021-01-01T00:00:00Z", "2021-01-01T01:00:00Z", "2021-01-01T02:00:00Z"],
		"Data": {"1": [{"Average": 1.5}, {"Average": 2.5}, {"Average": 3.5}]}
	}
}`

func newTestHandler(t *testing.T, opts entry.Options) (http.Handler, *server.ShutdownManager) {
	t.Helper()
	if opts.Stats == nil {
		opts.Stats = observability.NewExecStats(0)
	}
	sm := server.NewShutdownManager(server.ShutdownConfig{})
	return NewHandler(entry.NewRuntime(opts), nil, 1024).Routes(sm), sm
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExecuteEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, entry.Options{})

	rec := do(h, http.MethodPost, "/v1/execute", statsPayload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	var res struct {
		RequestKey json.Number
		OutputData map[string]interface{}
		Messages   struct{ Status string }
	}
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Messages.Status != entry.StatusSuccess || res.RequestKey.String() != "9" {
		t.Errorf("response = %+v", res)
	}
	if got, ok := res.OutputData["Pressure"].([]interface{}); !ok || len(got) != 2 {
		t.Errorf("Pressure = %v", res.OutputData["Pressure"])
	}
}

func TestExecuteEndpointErrors(t *testing.T) {
	h, _ := newTestHandler(t, entry.Options{Model: &model.Model{Coef: []float64{1, 2}}})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{"ExtractionType":`, http.StatusBadRequest, CodeInvalidRequest},
		{"empty body", ``, http.StatusBadRequest, palserrors.CodeNullInput},
		{"unknown type", `{"ExtractionType": 99}`, http.StatusBadRequest, palserrors.CodeUnrecognizedExtractionType},
		{"boolean type", `{"ExtractionType": true}`, http.StatusBadRequest, palserrors.CodeUnrecognizedExtractionType},
		{"reserved tag name", `{"ExtractionType": "PeriodicValues", "InputTags": [{"Key": 1, "Name": "Timestamps"}],
			"PeriodicValues": {"Timestamps": ["2021-01-01T00:00:00Z", "2021-01-01T00:00:10Z"], "Data": {"1": [{"Value": 1}, {"Value": 2}]}}}`,
			http.StatusBadRequest, palserrors.CodeReservedColumn},
		{"raw values", `{"ExtractionType": "RawValues", "RawValues": {}}`, http.StatusBadRequest, palserrors.CodeUnsupportedConversion},
		{"model width", statsPayload, http.StatusUnprocessableEntity, palserrors.CodeDimensionMismatch},
		{"too large", strings.Repeat(" ", 2048), http.StatusRequestEntityTooLarge, CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/v1/execute", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			var resp ErrorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Code != tt.code || resp.RequestID == "" {
				t.Errorf("response = %+v, want code %s", resp, tt.code)
			}
		})
	}
}

func TestScheduleEndpoint(t *testing.T) {
	filters, err := filter.Compile(map[string]filter.Spec{
		"on": {Key: "5", Condition: "contains", Value: "Run"},
	})
	if err != nil {
		t.Fatal(err)
	}
	h, _ := newTestHandler(t, entry.Options{Filters: filters})

	tests := []struct {
		body     string
		approved bool
	}{
		{`{"Tags": {"5": {"Value": "Running"}}}`, true},
		{`{"Tags": {"5": {"Value": "Stopped"}}}`, false},
		{`{}`, false},
		{``, false},
	}
	for _, tt := range tests {
		rec := do(h, http.MethodPost, "/v1/schedule", tt.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: status = %d (%s)", tt.body, rec.Code, rec.Body)
		}
		var res entry.ScheduleResult
		json.NewDecoder(rec.Body).Decode(&res)
		if res.RunSchedulingApproved != tt.approved {
			t.Errorf("body %q: approved = %v", tt.body, res.RunSchedulingApproved)
		}
	}

	rec := do(h, http.MethodPost, "/v1/schedule", `{"Tags": {"6": {"Value": 1}}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tag: status = %d", rec.Code)
	}
}

func TestHelloHealthAndStats(t *testing.T) {
	h, _ := newTestHandler(t, entry.Options{})

	rec := do(h, http.MethodGet, "/v1/hello", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Hello, world!") {
		t.Errorf("hello = %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodGet, "/v1/stats", "")
	var snap observability.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Name != entry.EntryHello {
		t.Errorf("stats = %+v", snap)
	}

	if rec := do(h, http.MethodGet, "/v1/execute", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET execute = %d", rec.Code)
	}
}

func TestRejectsDuringShutdown(t *testing.T) {
	h, sm := newTestHandler(t, entry.Options{})
	sm.Shutdown(context.Background(), "test")

	if rec := do(h, http.MethodGet, "/v1/hello", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("hello during shutdown = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health during shutdown = %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := DefaultMiddleware(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := do(h, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCorrelationIDPropagates(t *testing.T) {
	var seen string
	h := DefaultMiddleware(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "pals-run-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "pals-run-7" || rec.Header().Get("X-Correlation-ID") != "pals-run-7" {
		t.Errorf("correlation id = %q", seen)
	}
}

func nopLogger() logging.Logger { return logging.Nop() }
