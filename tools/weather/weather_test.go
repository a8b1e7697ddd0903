package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/Madrid") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "j1" {
			t.Errorf("missing format=j1 query")
		}
		w.Write([]byte(`{"current_condition":[{"temp_C":"21","FeelsLikeC":"20","humidity":"40","weatherDesc":[{"value":"Sunny"}]}]}`))
	}))
	defer srv.Close()

	tool := New(WithBaseURL(srv.URL))
	res, err := tool.Execute(context.Background(), "weather", json.RawMessage(`{"location":"Madrid"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected tool error: %s", res.Error)
	}
	want := "Madrid: Sunny, 21°C (feels like 20°C), humidity 40%"
	if res.Content != want {
		t.Errorf("Content = %q, want %q", res.Content, want)
	}
}

func TestExecuteMissingLocation(t *testing.T) {
	tool := New()
	res, err := tool.Execute(context.Background(), "weather", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "location is required" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestExecuteServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := New(WithBaseURL(srv.URL))
	res, err := tool.Execute(context.Background(), "weather", json.RawMessage(`{"location":"Madrid"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Error, "503") {
		t.Errorf("expected HTTP error in result, got %+v", res)
	}
}

func TestExecuteEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current_condition":[]}`))
	}))
	defer srv.Close()

	tool := New(WithBaseURL(srv.URL))
	res, _ := tool.Execute(context.Background(), "weather", json.RawMessage(`{"location":"Atlantis"}`))
	if !strings.Contains(res.Error, "no weather data") {
		t.Errorf("expected no-data error, got %+v", res)
	}
}
