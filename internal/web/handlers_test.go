package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/covereval/internal/bus"
	"github.com/ricesearch/covereval/internal/evaluation"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/store"
)

func setup(t *testing.T) (*Handler, *http.ServeMux, *store.Run) {
	t.Helper()
	results := store.NewResultStore(store.NewMemoryStorage())

	run := store.NewRun("msd_title")
	run.Split = "train"
	run.Profile = "msd"
	run.Size = 100
	run.Elapsed = 3 * time.Second
	run.Report = &evaluation.Report{
		Size:          100,
		Queries:       2,
		Evaluated:     1,
		MAP:           0.4321,
		MeanPrecision: map[int]float64{1: 1, 10: 0.2},
		MeanRecall:    map[int]float64{1: 0.5, 10: 1},
	}
	c := ranking.NewCollection()
	c.Set("Q1", ranking.NewResponse("Q1", ranking.Item{ID: "A", Score: 2}, ranking.Item{ID: "<b>", Score: 1}))
	c.Set("Q2", nil)
	run.SetCollection(c)

	if err := results.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	h := NewHandler(results, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux, run
}

func get(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestIndexPage(t *testing.T) {
	_, mux, run := setup(t)

	rec := get(mux, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "msd_title/train/msd@100") {
		t.Error("index should list the run label")
	}
	if !strings.Contains(body, "/v1/runs/"+run.ID+"/report") {
		t.Error("index should link the run report")
	}
	if !strings.Contains(body, "0.4321") {
		t.Error("index should show MAP")
	}
}

func TestReportPage(t *testing.T) {
	_, mux, run := setup(t)

	rec := get(mux, "/v1/runs/"+run.ID+"/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<!DOCTYPE html>", "MAP", "0.4321", "Cutoffs", "Backend failures"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}

	if rec := get(mux, "/v1/runs/missing/report"); rec.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d, want 404", rec.Code)
	}
}

func TestReportEscapesError(t *testing.T) {
	run := store.NewRun("credits")
	run.Status = store.StatusFailed
	run.Error = `<script>alert(1)</script>`

	var sb strings.Builder
	if err := RunReport(run).Render(context.Background(), &sb); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(sb.String(), "<script>") {
		t.Error("run error must be escaped")
	}
}

func TestGetRun(t *testing.T) {
	_, mux, run := setup(t)

	t.Run("summary", func(t *testing.T) {
		rec := get(mux, "/v1/runs/"+run.ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got store.Run
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != run.ID || got.Report == nil || got.Report.MAP != 0.4321 {
			t.Errorf("run = %+v", got)
		}
		if got.Results != nil {
			t.Error("results should be omitted by default")
		}
	})

	t.Run("with results", func(t *testing.T) {
		rec := get(mux, "/v1/runs/"+run.ID+"?results=true")
		var got store.Run
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got.Results) != 2 {
			t.Errorf("len(Results) = %d, want 2", len(got.Results))
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := get(mux, "/v1/runs/unknown")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := get(mux, "/v1/runs/.hidden")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetRun_ETag(t *testing.T) {
	_, mux, run := setup(t)

	first := get(mux, "/v1/runs/"+run.ID)
	tag := first.Header().Get("ETag")
	if tag == "" {
		t.Fatal("ETag header missing")
	}
	if full := get(mux, "/v1/runs/"+run.ID+"?results=true"); full.Header().Get("ETag") == tag {
		t.Error("summary and full renderings should have different tags")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID, nil)
	req.Header.Set("If-None-Match", tag)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("304 response should have no body")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID+"/report", nil)
	req.Header.Set("If-None-Match", tag)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("report with a JSON tag: status = %d, want 200", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	_, mux, _ := setup(t)

	rec := get(mux, "/v1/runs")
	var got struct {
		Runs  []store.Run `json:"runs"`
		Total int         `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 1 || len(got.Runs) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestQueryOutput(t *testing.T) {
	_, mux, run := setup(t)
	base := "/v1/runs/" + run.ID + "/queries/"

	t.Run("eval", func(t *testing.T) {
		rec := get(mux, base+"Q1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out ranking.EvalOutput
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Query != "Q1" || len(out.Items) != 2 || out.Items[0].ID != "A" {
			t.Errorf("out = %+v", out)
		}
	})

	t.Run("view", func(t *testing.T) {
		rec := get(mux, base+"Q1?out_mode=view")
		var out ranking.ViewOutput
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Response == nil || out.Response.Len() != 2 {
			t.Errorf("out = %+v", out)
		}
	})

	t.Run("absent", func(t *testing.T) {
		rec := get(mux, base+"Q2")
		if !strings.Contains(rec.Body.String(), `"absent":true`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("unknown query", func(t *testing.T) {
		if rec := get(mux, base+"Q9"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		rec := get(mux, base+"Q1?out_mode=xml")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		var resp errors.ErrorResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Code != errors.CodeValidation {
			t.Errorf("code = %s", resp.Code)
		}
	})
}

func TestDeleteRun(t *testing.T) {
	_, mux, run := setup(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/runs/"+run.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec := get(mux, "/v1/runs/"+run.ID); rec.Code != http.StatusNotFound {
		t.Errorf("deleted run status = %d, want 404", rec.Code)
	}
}

func TestEventsFromJournal(t *testing.T) {
	h, mux, _ := setup(t)

	if rec := get(mux, "/v1/events"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status without journal = %d, want 503", rec.Code)
	}

	path := filepath.Join(t.TempDir(), "events.jsonl")
	journal, err := bus.OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	old := bus.RunEvent(bus.RunPayload{RunID: "r1", Method: "msd_title"})
	old.Timestamp = 100
	recent := bus.RunEvent(bus.RunPayload{RunID: "r2", Method: "credits"})
	recent.Timestamp = 200
	journal.Append("runs", old)
	journal.Append("runs", recent)
	journal.Close()

	h.WithJournal(path)

	rec := get(mux, "/v1/events?since=150")
	var got struct {
		Events []bus.Event `json:"events"`
		Total  int         `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 1 || got.Events[0].ID != recent.ID {
		t.Errorf("events = %+v", got)
	}

	if rec := get(mux, "/v1/events?since=yesterday"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	h, mux, _ := setup(t)

	events := bus.NewMemoryBus(nil)
	defer events.Close()
	if err := h.Subscribe(context.Background(), events, "runs"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The client is registered once headers are flushed; publish until the
	// event shows up on the stream.
	want := bus.RunEvent(bus.RunPayload{RunID: "r1", Method: "msd_title"})
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			events.Publish(context.Background(), "runs", want)
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before the event arrived")
			}
			if line == "event: "+bus.TypeRunCompleted {
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for streamed event")
		}
	}
}
