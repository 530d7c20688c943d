package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"paretodesk/internal/design"
	"paretodesk/internal/material"
	"paretodesk/internal/optimizer"
	"paretodesk/internal/selection"
	"paretodesk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOptimizer struct {
	mu        sync.Mutex
	result    *optimizer.Result
	err       error
	requests  []types.OptimizeRequest
	downloads []int
}

func (f *fakeOptimizer) Optimize(ctx context.Context, req types.OptimizeRequest) (*optimizer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeOptimizer) Demo(ctx context.Context) (*optimizer.Result, error) {
	return f.result, f.err
}

func (f *fakeOptimizer) Download(ctx context.Context, designID int) (*optimizer.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, designID)
	return &optimizer.Asset{Body: io.NopCloser(strings.NewReader("zip")), ContentType: "application/zip"}, nil
}

func record(id int, mass, cost, stress float64) design.Record {
	return design.Record{ID: &id, Mass: mass, Cost: cost, StressPredicted: &stress}
}

func frontResult() *optimizer.Result {
	return &optimizer.Result{
		Records: []design.Record{
			record(1, 8.82, 10.32, 12),
			record(2, 9.18, 10.31, 11),
			record(3, 10.4, 9.90, 9),
		},
		Generations: 50,
		Evaluations: 2000,
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []types.WSEvent
}

func (l *eventLog) emit(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, v.(types.WSEvent))
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func newTestEngine(opt *fakeOptimizer) (*Engine, *eventLog) {
	events := &eventLog{}
	return NewEngine(opt, nil, events.emit, nil), events
}

func TestOptimize_InstallsCatalog(t *testing.T) {
	opt := &fakeOptimizer{result: frontResult()}
	e, events := newTestEngine(opt)

	cat, err := e.Optimize(context.Background(), types.OptimizeRequest{Load: 50, Material: "steel1045"})
	require.NoError(t, err)

	require.Len(t, opt.requests, 1)
	assert.Equal(t, types.OptimizeRequest{Load: 50, Material: "Steel1045", PopulationSize: 40, Generations: 50}, opt.requests[0])

	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, "Steel1045", cat.Material)
	assert.Equal(t, 310.0, cat.YieldStrength)
	assert.NotEmpty(t, cat.RunID)
	assert.Equal(t, []string{"catalog", "state"}, events.kinds())

	view, err := e.Catalog()
	require.NoError(t, err)
	assert.Len(t, view.Designs, 3)

	status := e.Status()
	assert.Equal(t, cat.RunID, status.RunID)
	assert.Equal(t, 3, status.Designs)
	assert.Equal(t, 1, status.Runs)
}

func TestOptimize_RejectsInvalidRequestLocally(t *testing.T) {
	tests := []struct {
		name string
		req  types.OptimizeRequest
	}{
		{"unknown material", types.OptimizeRequest{Load: 50, Material: "Titanium"}},
		{"zero load", types.OptimizeRequest{Load: 0, Material: "PLA"}},
		{"population too small", types.OptimizeRequest{Load: 10, Material: "PLA", PopulationSize: 2}},
		{"too many generations", types.OptimizeRequest{Load: 10, Material: "PLA", Generations: 5000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := &fakeOptimizer{result: frontResult()}
			e, _ := newTestEngine(opt)

			_, err := e.Optimize(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, opt.requests)
		})
	}
}

func TestOptimize_ServiceFailureKeepsSession(t *testing.T) {
	opt := &fakeOptimizer{result: frontResult()}
	e, _ := newTestEngine(opt)
	_, err := e.Demo(context.Background())
	require.NoError(t, err)
	e.Activate(selection.Activation{DesignID: 1})

	opt.err = optimizer.ErrService
	_, err = e.Optimize(context.Background(), types.OptimizeRequest{Load: 50})
	require.ErrorIs(t, err, optimizer.ErrService)

	assert.Equal(t, []int{1}, e.Selection().Selected)
}

func TestOptimize_PartialCatalogNeverInstalled(t *testing.T) {
	bad := frontResult()
	bad.Records = append(bad.Records, record(2, 1, 1, 1)) // duplicate id
	opt := &fakeOptimizer{result: frontResult()}
	e, events := newTestEngine(opt)

	_, err := e.Demo(context.Background())
	require.NoError(t, err)
	before, _ := e.Catalog()
	events.clear()

	opt.result = bad
	_, err = e.Optimize(context.Background(), types.OptimizeRequest{Load: 50})
	require.ErrorIs(t, err, design.ErrInvalidCatalog)

	after, _ := e.Catalog()
	assert.Equal(t, before.RunID, after.RunID)
	assert.Empty(t, events.kinds())
}

func TestInstall_SupersededRunDiscarded(t *testing.T) {
	e, _ := newTestEngine(&fakeOptimizer{})
	pla, _ := material.Default().Lookup(material.PLA)

	older := e.nextSeq()
	newer := e.nextSeq()

	_, err := e.install(newer, "optimize", frontResult(), pla, time.Now())
	require.NoError(t, err)
	current, _ := e.Catalog()

	_, err = e.install(older, "optimize", frontResult(), pla, time.Now())
	assert.ErrorIs(t, err, ErrSuperseded)

	still, _ := e.Catalog()
	assert.Equal(t, current.RunID, still.RunID)
}

func TestActivate_ComparisonFlow(t *testing.T) {
	e, events := newTestEngine(&fakeOptimizer{result: frontResult()})
	_, err := e.Demo(context.Background())
	require.NoError(t, err)
	events.clear()

	e.Activate(selection.Activation{DesignID: 1, CompareRequested: true})
	e.Activate(selection.Activation{DesignID: 2, CompareRequested: true})
	snap, applied := e.Activate(selection.Activation{DesignID: 3, CompareRequested: true})

	require.True(t, applied)
	assert.Equal(t, []int{2, 3}, snap.Selected)
	require.NotNil(t, snap.Comparison)
	assert.Equal(t, 2, snap.Comparison.A)
	assert.Equal(t, 3, snap.Comparison.B)
	assert.Equal(t, 50.0, snap.Comparison.YieldStrength, "demo runs use PLA")

	assert.Equal(t, []string{
		"state", "partial_selection",
		"state", "comparison",
		"state", "comparison",
	}, events.kinds())

	_, applied = e.Activate(selection.Activation{DesignID: 42})
	assert.False(t, applied)
}

func TestToggleComparison(t *testing.T) {
	e, _ := newTestEngine(&fakeOptimizer{result: frontResult()})
	_, err := e.Demo(context.Background())
	require.NoError(t, err)

	e.Activate(selection.Activation{DesignID: 1})
	snap := e.ToggleComparison()
	assert.Equal(t, selection.Comparison, snap.Mode)
	assert.Equal(t, []int{1}, snap.Selected)

	snap = e.ToggleComparison()
	assert.Equal(t, selection.Single, snap.Mode)
	assert.Empty(t, snap.Selected)
}

func TestDownload(t *testing.T) {
	opt := &fakeOptimizer{result: frontResult()}
	e, _ := newTestEngine(opt)

	_, err := e.Download(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCatalog)

	_, err = e.Demo(context.Background())
	require.NoError(t, err)

	_, err = e.Download(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDesignSelected)

	missing := 99
	_, err = e.Download(context.Background(), &missing)
	assert.ErrorIs(t, err, ErrUnknownDesign)
	assert.Empty(t, opt.downloads, "rejected locally without a service call")

	e.Activate(selection.Activation{DesignID: 2})
	asset, err := e.Download(context.Background(), nil)
	require.NoError(t, err)
	defer asset.Body.Close()
	assert.Equal(t, []int{2}, opt.downloads)

	three := 3
	_, err = e.Download(context.Background(), &three)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, opt.downloads)
}

func TestAdvise(t *testing.T) {
	e, _ := newTestEngine(&fakeOptimizer{})

	advice, err := e.Advise(material.Query{Load: 120, Environment: material.Industrial, Budget: material.Low})
	require.NoError(t, err)
	assert.Equal(t, material.PLA, advice.Recommendation.Material)
	assert.Len(t, advice.Comparison, 3)

	_, err = e.Advise(material.Query{Load: -5, Environment: material.General, Budget: material.Low})
	assert.ErrorIs(t, err, material.ErrInvalidQuery)
}

func TestStartOptimize_EmitsErrorEvent(t *testing.T) {
	opt := &fakeOptimizer{err: errors.New("connection refused")}
	e, events := newTestEngine(opt)

	_, err := e.StartOptimize(types.OptimizeRequest{Load: 0}, time.Second)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.StartOptimize(types.OptimizeRequest{Load: 50}, time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got := events.kinds()
		return len(got) == 1 && got[0] == "error"
	}, time.Second, 5*time.Millisecond)
}
