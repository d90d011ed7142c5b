package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	server "review_collector/internal/adapters/http_server"
	"review_collector/internal/app"
	"review_collector/internal/domain"
)

func TestStatusServer_RunsSnapshot(t *testing.T) {
	tracker := app.NewRunTracker()
	id := tracker.Start(domain.Job{AppID: "com.whatsapp", Source: domain.GooglePlay})
	tracker.Update(id, 40, 1, 2, 3)

	srv := server.New()
	srv.MountHandlers(&server.Handlers{Tracker: tracker})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/runs")
	if err != nil {
		t.Fatalf("GET /v1/runs: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}

	var body struct {
		Runs []domain.RunStatus `json:"runs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(body.Runs))
	}
	rs := body.Runs[0]
	if rs.AppID != "com.whatsapp" || rs.State != domain.RunActive || rs.Written != 40 || rs.Pages != 3 {
		t.Fatalf("unexpected run status: %+v", rs)
	}

	hres, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	hres.Body.Close()
	if hres.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", hres.StatusCode)
	}
}
