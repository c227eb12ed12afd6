package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchRejectsEmptyQuery(t *testing.T) {
	client := NewClient("http://example.invalid", "")
	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := client.Search(context.Background(), q, 0); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("query %q: got %v, want ErrEmptyQuery", q, err)
		}
	}
}

func TestSearchForwardsQueryAndKey(t *testing.T) {
	var gotQuery, gotCount, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"title":"Go","url":"https://go.dev","description":"The Go language"}],"total":42}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test")
	resp, err := client.Search(context.Background(), "golang tutorial", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if gotQuery != "golang tutorial" {
		t.Errorf("provider received q=%q", gotQuery)
	}
	if gotCount != "5" {
		t.Errorf("provider received count=%q", gotCount)
	}
	if gotAuth != "Bearer sk_test" {
		t.Errorf("provider received auth=%q", gotAuth)
	}
	if resp.Term != "golang tutorial" {
		t.Errorf("term = %q", resp.Term)
	}
	if resp.Total != 42 {
		t.Errorf("total = %d, want 42", resp.Total)
	}
	if len(resp.Results) != 1 || resp.Results[0].URL != "https://go.dev" {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Timing < 0 {
		t.Errorf("timing = %d", resp.Timing)
	}
}

func TestSearchEmptyResultsStayNonNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":null,"total":0}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "").Search(context.Background(), "nothing here", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Results == nil {
		t.Fatal("results should be an empty slice, not nil")
	}
	if resp.Total != 0 {
		t.Errorf("total = %d", resp.Total)
	}
}

func TestSearchProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "").Search(context.Background(), "anything", 0); err == nil {
		t.Fatal("expected provider error")
	}
}
