package health

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDBChecker_Creation(t *testing.T) {
	db := &sql.DB{}

	checker := NewDBChecker(db)
	if checker == nil {
		t.Fatal("expected checker to be non-nil")
	}

	if checker.db != db {
		t.Error("expected checker db to match provided db")
	}
}

func TestAppServerChecker_HealthyServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewAppServerChecker(server.URL)
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}

func TestAppServerChecker_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := NewAppServerChecker(server.URL)
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestAppServerChecker_MissingURL(t *testing.T) {
	checker := NewAppServerChecker("")
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected an error when the url is not configured")
	}
}

func TestAppServerChecker_Unreachable(t *testing.T) {
	checker := NewAppServerChecker("http://127.0.0.1:1")
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected an error for an unreachable server")
	}
}
