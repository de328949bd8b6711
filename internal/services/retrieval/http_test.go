package retrieval

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: "u-1", Role: models.RoleMember}
}

func TestHTTPClient_GetEntity(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") != "u-1" {
			t.Errorf("missing identity header, got %q", r.Header.Get("X-User-ID"))
		}
		switch r.URL.Path {
		case "/api/v1/items/task/TSK-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "TSK-1", "type": "task", "title": "Fix login"}`))
		case "/api/v1/items/task/TSK-404":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v1/items/task/TSK-403":
			w.WriteHeader(http.StatusForbidden)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	ctx := context.Background()

	item, err := c.GetEntity(ctx, testUser(), models.ExtractedEntity{Type: models.EntityTask, ID: "TSK-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Title != "Fix login" {
		t.Errorf("item = %+v", item)
	}

	_, err = c.GetEntity(ctx, testUser(), models.ExtractedEntity{Type: models.EntityTask, ID: "TSK-404"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("404 should map to ErrNotFound, got %v", err)
	}

	_, err = c.GetEntity(ctx, testUser(), models.ExtractedEntity{Type: models.EntityTask, ID: "TSK-403"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("403 should map to ErrAccessDenied, got %v", err)
	}
}

func TestHTTPClient_SearchQueryEncoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "open" || q.Get("period") != "last_week" || q.Get("type") != "bug" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [{"id": "BUG-1", "type": "bug", "title": "crash"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	items, err := c.Search(context.Background(), testUser(),
		[]models.EntityType{models.EntityBug},
		Filters{Status: "open", Temporal: &models.TemporalFilter{Period: "last_week"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "BUG-1" {
		t.Errorf("items = %+v", items)
	}
}

func TestHTTPClient_Report(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/reports" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title": "Bugs by status", "total": 3, "groups": [{"label": "open", "count": 2}, {"label": "closed", "count": 1}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	res, err := c.Report(context.Background(), testUser(), ReportSpec{
		GroupBy: "status",
		Types:   []models.EntityType{models.EntityBug},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 3 || len(res.Groups) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPClient_BackendErrorIsNotSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccessDenied) {
		t.Errorf("5xx must not map to a sentinel error: %v", err)
	}
}
