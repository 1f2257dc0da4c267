package runner

import (
	"context"
	stderrors "errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/covereval/internal/bus"
	"github.com/ricesearch/covereval/internal/config"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/search"
	"github.com/ricesearch/covereval/internal/store"
)

type fakeBackend struct {
	mu        sync.Mutex
	responses map[search.EvidenceSource]map[string]*ranking.Response
	roles     map[string][]string
	closed    bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responses: make(map[search.EvidenceSource]map[string]*ranking.Response),
		roles:     make(map[string][]string),
	}
}

func (f *fakeBackend) set(source search.EvidenceSource, resp *ranking.Response) {
	if f.responses[source] == nil {
		f.responses[source] = make(map[string]*ranking.Response)
	}
	f.responses[source][resp.Query] = resp
}

func (f *fakeBackend) Search(_ context.Context, req search.Request) (*ranking.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[req.Source()][req.Query()], nil
}

func (f *fakeBackend) Roles(_ context.Context, track, _ string) ([]string, error) {
	return f.roles[track], nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func scored(query string, ids ...string) *ranking.Response {
	items := make([]ranking.Item, len(ids))
	for i, id := range ids {
		items[i] = ranking.Item{ID: id, Score: float64(len(ids) - i)}
	}
	return ranking.NewResponse(query, items...)
}

func testRows() []groundtruth.Row {
	return []groundtruth.Row{
		{"track_id": "Q1", "clique_id": "W1", "title": "yesterday", "artist_id": "AR1"},
		{"track_id": "A", "clique_id": "W1", "title": "yesterday", "artist_id": "AR2"},
		{"track_id": "B", "clique_id": "W1", "title": "yesterday live", "artist_id": "AR1"},
		{"track_id": "Q2", "clique_id": "W2", "title": "something", "artist_id": "AR3"},
		{"track_id": "C", "clique_id": "W2", "title": "something", "artist_id": "AR4"},
	}
}

func staticDatasets(rows []groundtruth.Row) DatasetLoader {
	return func(experiment.Split) ([]groundtruth.Row, error) { return rows, nil }
}

func staticBackends(b search.Backend) BackendFactory {
	return func(context.Context) (search.Backend, error) { return b, nil }
}

func TestSpecName(t *testing.T) {
	s := Spec{Method: experiment.MethodTitle, Split: experiment.SplitTest, Profile: experiment.ProfileSHS, Size: 50}
	if got := s.Name(); got != "msd_title/test/shs@50" {
		t.Errorf("Name() = %q", got)
	}
	if err := (Spec{Size: 0}).Validate(); !errors.IsValidation(err) {
		t.Errorf("Validate() with zero size = %v, want validation error", err)
	}
}

func TestMatrix(t *testing.T) {
	methods := []experiment.Method{experiment.MethodTitle, experiment.MethodCredits}
	profiles := []experiment.Profile{experiment.ProfileMSD, experiment.ProfileSHS}

	specs := Matrix(methods, []experiment.Split{experiment.SplitTrain}, profiles, []int{100})
	if len(specs) != 4 {
		t.Fatalf("len(Matrix) = %d, want 4", len(specs))
	}
	want := []string{
		"msd_title/train/msd@100",
		"credits/train/msd@100",
		"msd_title/train/shs@100",
		"credits/train/shs@100",
	}
	for i, s := range specs {
		if s.Name() != want[i] {
			t.Errorf("specs[%d] = %s, want %s", i, s.Name(), want[i])
		}
	}
}

func TestSpecsFromConfig(t *testing.T) {
	cfg := config.Default().Eval
	cfg.Methods = []string{"msd_title", "title_mxm_lyrics"}
	cfg.Profile = "shs"
	cfg.ExcludeDuplicates = true
	cfg.Mode = "test"

	specs, err := SpecsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SpecsFromConfig() error = %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len(specs) = %d, want 2", len(specs))
	}
	if specs[0].Profile != experiment.ProfileSHSNoDup {
		t.Errorf("Profile = %s, want shs_no_dup", specs[0].Profile)
	}
	if specs[1].Split != experiment.SplitTest {
		t.Errorf("Split = %s, want test", specs[1].Split)
	}

	cfg.Methods = []string{"bogus"}
	if _, err := SpecsFromConfig(cfg); err == nil {
		t.Error("SpecsFromConfig() should reject unknown methods")
	}
}

func TestSettings(t *testing.T) {
	cfg := config.Default().Eval
	cfg.QueryMode = "query_string"
	cfg.LyricsProximity = 0.25

	s, err := Settings(cfg)
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.Mode != search.ModeQueryString {
		t.Errorf("Mode = %v, want query_string", s.Mode)
	}
	if s.LyricsProximity != 0.25 {
		t.Errorf("LyricsProximity = %v", s.LyricsProximity)
	}

	cfg.QueryMode = "fuzzy"
	if _, err := Settings(cfg); err == nil {
		t.Error("Settings() should reject an unknown query mode")
	}
}

func TestPool_OutcomesInOrder(t *testing.T) {
	specs := Matrix(experiment.Methods()[:6], []experiment.Split{experiment.SplitTrain}, []experiment.Profile{experiment.ProfileMSD}, []int{10})

	var running, peak atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, spec Spec) (*store.Run, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)

		if spec.Method == experiment.MethodMXMLyrics {
			return nil, stderrors.New("boom")
		}
		return &store.Run{Method: spec.Method.String()}, nil
	})

	pool := NewPool(2, exec, nil)
	outcomes, err := pool.Run(context.Background(), specs)
	if err == nil {
		t.Fatal("Run() error = nil, want the failed run")
	}
	if !strings.Contains(err.Error(), "mxm_lyrics/train/msd@10: boom") {
		t.Errorf("error = %v, want it to name the failed run", err)
	}

	if len(outcomes) != len(specs) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(specs))
	}
	failed := 0
	for i, o := range outcomes {
		if o.Spec != specs[i] {
			t.Errorf("outcomes[%d].Spec = %s, want %s", i, o.Spec.Name(), specs[i].Name())
		}
		if o.Err != nil {
			failed++
			continue
		}
		if o.Run == nil || o.Run.Method != specs[i].Method.String() {
			t.Errorf("outcomes[%d].Run = %+v", i, o.Run)
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1 (siblings must not be canceled)", failed)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestPool_Defaults(t *testing.T) {
	pool := NewPool(0, ExecutorFunc(func(context.Context, Spec) (*store.Run, error) { return nil, nil }), nil)
	if pool.Workers() != runtime.NumCPU() {
		t.Errorf("Workers() = %d, want %d", pool.Workers(), runtime.NumCPU())
	}

	outcomes, err := pool.Run(context.Background(), nil)
	if err != nil || len(outcomes) != 0 {
		t.Errorf("Run(nil) = %v, %v", outcomes, err)
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool(1, ExecutorFunc(func(context.Context, Spec) (*store.Run, error) {
		panic("bad run")
	}), nil)

	outcomes, err := pool.Run(context.Background(), []Spec{{Method: experiment.MethodTitle, Size: 1}})
	if err == nil || outcomes[0].Err == nil {
		t.Fatal("panicking run should fail")
	}
}

func TestPool_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	pool := NewPool(1, ExecutorFunc(func(context.Context, Spec) (*store.Run, error) {
		called = true
		return nil, nil
	}), nil)

	_, err := pool.Run(ctx, []Spec{{Method: experiment.MethodTitle, Size: 1}})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("executor should not run after cancellation")
	}
}

type capture struct {
	mu     sync.Mutex
	events []bus.Event
	got    chan struct{}
}

func subscribe(t *testing.T, b bus.Bus, topic string) *capture {
	t.Helper()
	c := &capture{got: make(chan struct{}, 16)}
	err := b.Subscribe(context.Background(), topic, func(_ context.Context, e bus.Event) error {
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
		c.got <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return c
}

func (c *capture) wait(t *testing.T) bus.Event {
	t.Helper()
	select {
	case <-c.got:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for run event")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func TestEvaluator_Execute(t *testing.T) {
	backend := newFakeBackend()
	backend.set(search.SourceTitle, scored("Q1", "A", "X", "B"))
	backend.set(search.SourceTitle, scored("A", "Q1", "B"))
	backend.set(search.SourceTitle, scored("Q2", "Y"))

	results := store.NewResultStore(store.NewMemoryStorage())
	history := metrics.NewMemoryHistory(10)
	events := bus.NewMemoryBus(nil)
	defer events.Close()
	captured := subscribe(t, events, "runs")

	ev, err := NewEvaluator(Deps{
		Datasets: staticDatasets(testRows()),
		Backends: staticBackends(backend),
		Settings: experiment.DefaultSettings(),
		Seed:     7,
		Store:    results,
		History:  history,
		Bus:      events,
		Topic:    "runs",
	})
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	spec := Spec{Method: experiment.MethodTitle, Split: experiment.SplitTrain, Profile: experiment.ProfileMSD, Size: 10}
	run, err := ev.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if run.Status != store.StatusCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	if run.Label() != "msd_title/train/msd@10" {
		t.Errorf("Label() = %s", run.Label())
	}
	if run.Report == nil {
		t.Fatal("Report is nil")
	}
	if run.Report.Queries != 5 {
		t.Errorf("Queries = %d, want 5", run.Report.Queries)
	}
	if run.Report.Evaluated != 3 {
		t.Errorf("Evaluated = %d, want 3", run.Report.Evaluated)
	}
	if run.Report.NoResponseQueries != 2 {
		t.Errorf("NoResponseQueries = %d, want 2", run.Report.NoResponseQueries)
	}
	if run.Report.MAP <= 0 {
		t.Errorf("MAP = %v, want > 0", run.Report.MAP)
	}
	if !backend.closed {
		t.Error("backend should be closed after the run")
	}

	stored, err := results.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	c, err := stored.Collection()
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	if !c.Absent("B") || c.Absent("Q1") {
		t.Errorf("stored collection presence wrong: %v", c.Queries())
	}

	points, err := history.Load(context.Background(), metrics.SeriesName("msd_title", "msd", "simple_query"), time.Time{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(points) != 1 || points[0].RunID != run.ID {
		t.Errorf("history = %+v", points)
	}

	event := captured.wait(t)
	if event.Type != bus.TypeRunCompleted {
		t.Errorf("event type = %s, want %s", event.Type, bus.TypeRunCompleted)
	}
}

func TestEvaluator_MalformedDataset(t *testing.T) {
	rows := testRows()
	rows = append(rows, groundtruth.Row{"track_id": "A", "clique_id": "W9"})

	results := store.NewResultStore(store.NewMemoryStorage())
	events := bus.NewMemoryBus(nil)
	defer events.Close()
	captured := subscribe(t, events, "runs")

	backendOpened := false
	ev, err := NewEvaluator(Deps{
		Datasets: staticDatasets(rows),
		Backends: func(context.Context) (search.Backend, error) {
			backendOpened = true
			return newFakeBackend(), nil
		},
		Settings: experiment.DefaultSettings(),
		Store:    results,
		Bus:      events,
		Topic:    "runs",
	})
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	run, err := ev.Execute(context.Background(), Spec{Method: experiment.MethodTitle, Size: 10})
	if !errors.IsMalformedDataset(err) {
		t.Fatalf("Execute() error = %v, want malformed dataset", err)
	}
	if backendOpened {
		t.Error("no search should happen for a malformed dataset")
	}
	if run == nil || run.Status != store.StatusFailed || run.Error == "" {
		t.Fatalf("run = %+v, want a failed run", run)
	}

	if _, err := results.GetRun(context.Background(), run.ID); err != nil {
		t.Errorf("failed run should be stored: %v", err)
	}
	if event := captured.wait(t); event.Type != bus.TypeRunFailed {
		t.Errorf("event type = %s, want %s", event.Type, bus.TypeRunFailed)
	}
}

func TestNewEvaluator_Validation(t *testing.T) {
	if _, err := NewEvaluator(Deps{Backends: staticBackends(newFakeBackend())}); err == nil {
		t.Error("NewEvaluator() without datasets should fail")
	}
	if _, err := NewEvaluator(Deps{Datasets: staticDatasets(testRows())}); err == nil {
		t.Error("NewEvaluator() without backends should fail")
	}
	_, err := NewEvaluator(Deps{
		Datasets: staticDatasets(testRows()),
		Backends: staticBackends(newFakeBackend()),
		Bus:      bus.NewMemoryBus(nil),
	})
	if err == nil {
		t.Error("NewEvaluator() with a bus and no topic should fail")
	}
}

func storeRun(t *testing.T, results *store.ResultStore, method string, c ranking.Collection) *store.Run {
	t.Helper()
	run := store.NewRun(method)
	run.Split = "train"
	run.Profile = "msd"
	run.Size = 10
	run.SetCollection(c)
	if err := results.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	return run
}

func TestReranker_Oracle(t *testing.T) {
	results := store.NewResultStore(store.NewMemoryStorage())
	c := ranking.NewCollection()
	c.Set("Q1", scored("Q1", "X", "Y", "A", "B"))
	c.Set("Q2", nil)
	parent := storeRun(t, results, "msd_title", c)

	rr, err := NewReranker(staticDatasets(testRows()), nil, results, 1, nil)
	if err != nil {
		t.Fatalf("NewReranker() error = %v", err)
	}

	run, stats, err := rr.Oracle(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("Oracle() error = %v", err)
	}
	if run.Parent != parent.ID || run.Method != "msd_title"+SuffixOracle {
		t.Errorf("run = %s parent %s", run.Method, run.Parent)
	}
	if stats.Reranked != 1 {
		t.Errorf("Reranked = %d, want 1", stats.Reranked)
	}

	out, err := run.Collection()
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	got := strings.Join(out["Q1"].IDs(), ",")
	if got != "A,B,X,Y" {
		t.Errorf("Q1 = %s, want A,B,X,Y", got)
	}
	if !out.Absent("Q2") {
		t.Error("Q2 should stay absent")
	}
}

func TestReranker_Audio(t *testing.T) {
	results := store.NewResultStore(store.NewMemoryStorage())

	text := ranking.NewCollection()
	text.Set("Q1", scored("Q1", "X", "Y", "B", "A"))
	audio := ranking.NewCollection()
	audio.Set("Q1", ranking.NewResponse("Q1",
		ranking.Item{ID: "A", Score: 0.05},
		ranking.Item{ID: "B", Score: 0.08},
		ranking.Item{ID: "Z", Score: 0.09},
		ranking.Item{ID: "X", Score: 0.5},
	))

	textRun := storeRun(t, results, "msd_title", text)
	audioRun := storeRun(t, results, "audio", audio)

	rr, err := NewReranker(staticDatasets(testRows()), nil, results, 1, nil)
	if err != nil {
		t.Fatalf("NewReranker() error = %v", err)
	}

	run, _, err := rr.Audio(context.Background(), textRun.ID, audioRun.ID, 0.1)
	if err != nil {
		t.Fatalf("Audio() error = %v", err)
	}
	out, _ := run.Collection()
	if got := strings.Join(out["Q1"].IDs(), ","); got != "A,B,X,Y" {
		t.Errorf("Q1 = %s, want A,B,X,Y", got)
	}
}

func TestReranker_Credits(t *testing.T) {
	results := store.NewResultStore(store.NewMemoryStorage())
	c := ranking.NewCollection()
	c.Set("Q1", scored("Q1", "X", "B", "A"))
	parent := storeRun(t, results, "msd_title", c)

	backend := newFakeBackend()
	backend.roles["Q1"] = []string{"lennon", "mccartney"}
	backend.roles["A"] = []string{"mccartney"}

	rr, err := NewReranker(staticDatasets(testRows()), nil, results, 1, nil)
	if err != nil {
		t.Fatalf("NewReranker() error = %v", err)
	}
	if _, _, err := rr.Credits(context.Background(), parent.ID, "Composer", 1.0); !errors.IsValidation(err) {
		t.Errorf("Credits() without backend = %v, want validation error", err)
	}

	rr, _ = NewReranker(staticDatasets(testRows()), staticBackends(backend), results, 1, nil)
	run, stats, err := rr.Credits(context.Background(), parent.ID, "Composer", 10)
	if err != nil {
		t.Fatalf("Credits() error = %v", err)
	}
	if stats.Queries != 1 {
		t.Errorf("Queries = %d, want 1", stats.Queries)
	}
	out, _ := run.Collection()
	if got := out["Q1"].IDs()[0]; got != "A" {
		t.Errorf("Q1 head = %s, want A", got)
	}
}

func TestReranker_MissingRun(t *testing.T) {
	results := store.NewResultStore(store.NewMemoryStorage())
	rr, _ := NewReranker(staticDatasets(testRows()), nil, results, 1, nil)

	if _, _, err := rr.Oracle(context.Background(), "nope"); !errors.IsNotFound(err) {
		t.Errorf("Oracle() error = %v, want not found", err)
	}
}
