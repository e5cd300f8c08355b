package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestResourceKind проверяет классификацию путей по ресурсам DICOMweb.
func TestResourceKind(t *testing.T) {
	cases := map[string]string{
		"/studies":                                "studies",
		"/studies/1.2.3/metadata":                 "studies",
		"/studies/1.2.3/series":                   "series",
		"/series":                                 "series",
		"/studies/1.2.3/series/1.2.3.1/instances": "instances",
		"/instances":                              "instances",
		"/changefeed":                             "changefeed",
		"/changefeed/latest":                      "changefeed",
		"/metrics":                                "system",
		"/health/ready":                           "system",
	}
	for path, want := range cases {
		if got := resourceKind(path); got != want {
			t.Errorf("%s: ожидалось %q, получено %q", path, want, got)
		}
	}
}

// TestRequestLogger проверяет запись журнала: ресурс, статус и уровень.
func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/studies/1.2.3/series/1.2.3.1/instances/1.2.3.1.1", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "resource=instances") {
		t.Errorf("в записи нет ресурса: %s", out)
	}
	if !strings.Contains(out, "status=404") {
		t.Errorf("в записи нет статуса: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("4xx должен журналироваться на WARN: %s", out)
	}
}

// TestRequestLoggerSystemDebug проверяет понижение служебных путей до DEBUG.
func TestRequestLoggerSystemDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if buf.Len() != 0 {
		t.Errorf("успешный служебный запрос не должен попадать в INFO-журнал: %s", buf.String())
	}
}
