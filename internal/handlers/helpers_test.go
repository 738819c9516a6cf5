package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/domus/internal/durable"
)

func TestFaultStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", durable.NewFault(durable.KindValidation, "bad input"), http.StatusBadRequest},
		{"not found", durable.NewFault(durable.KindNotFound, "missing"), http.StatusNotFound},
		{"already exists", durable.NewFault(durable.KindAlreadyExists, "conflict"), http.StatusConflict},
		{"unavailable", durable.NewFault(durable.KindUnavailable, "retry later"), http.StatusServiceUnavailable},
		{"transient", durable.NewFault(durable.KindTransient, "blip"), http.StatusInternalServerError},
		{"internal", durable.NewFault(durable.KindInternal, "broken"), http.StatusInternalServerError},
		{"plain error", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FaultStatus(tt.err); got != tt.expected {
				t.Errorf("FaultStatus(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestWriteFault(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteFault(rec, durable.NewFault(durable.KindNotFound, "project %q does not exist", "milan-flat"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "error" {
		t.Errorf("expected status error, got %q", body["status"])
	}
	if body["kind"] != "not_found" {
		t.Errorf("expected kind not_found, got %q", body["kind"])
	}
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestRequireMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/projects/p", nil)

	if RequireMethod(rec, r, http.MethodPost) {
		t.Error("GET must not satisfy a POST requirement")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if !RequireMethod(rec, r, http.MethodGet) {
		t.Error("GET must satisfy a GET requirement")
	}
}
