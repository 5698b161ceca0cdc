package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brewkit/brewmon/internal/store"
)

func TestDeliverAndHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/deliveries":
			if r.Method == http.MethodPost {
				var req deliverRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				_ = json.NewEncoder(w).Encode(store.Record{
					ID: 1, CoffeeType: req.CoffeeType, GroupNumber: req.Group,
					Status: store.StatusInProgress, TriggerType: store.TriggerAPI,
					StartedAt: time.Now(),
				})
				return
			}
			_ = json.NewEncoder(w).Encode(HistoryResult{
				Records: []store.Record{{ID: 1}}, Count: 1,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	ctx := context.Background()

	rec, err := c.Deliver(ctx, "single_short", 1)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if rec.CoffeeType != "single_short" || rec.Status != store.StatusInProgress {
		t.Fatalf("unexpected record: %+v", rec)
	}

	res, err := c.History(ctx, "api", 0, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if res.Count != 1 || len(res.Records) != 1 {
		t.Fatalf("unexpected history: %+v", res)
	}
}

func TestErrorMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "group busy"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	err := c.Purge(context.Background(), 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "group busy") {
		t.Fatalf("server message lost: %q", err.Error())
	}
}

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/monitor/status" {
			_ = json.NewEncoder(w).Encode(map[string]bool{"enabled": false})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	if !c.IsReachable(context.Background()) {
		t.Fatalf("daemon should be reachable")
	}

	srv.Close()
	if c.IsReachable(context.Background()) {
		t.Fatalf("closed server should be unreachable")
	}
}
