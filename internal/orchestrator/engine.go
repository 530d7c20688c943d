package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paretodesk/internal/design"
	"paretodesk/internal/material"
	"paretodesk/internal/optimizer"
	"paretodesk/internal/selection"
	"paretodesk/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrNoCatalog        = errors.New("no design catalog loaded")
	ErrNoDesignSelected = errors.New("no design selected")
	ErrUnknownDesign    = errors.New("design not in the active catalog")
	ErrInvalidRequest   = errors.New("invalid optimize request")
	ErrSuperseded       = errors.New("superseded by a newer run")
)

// demoMaterial is the material the optimizer service uses for its demo front.
const demoMaterial = material.PLA

var validate = validator.New()

// Optimizer is the external optimizer service.
type Optimizer interface {
	Optimize(ctx context.Context, req types.OptimizeRequest) (*optimizer.Result, error)
	Demo(ctx context.Context) (*optimizer.Result, error)
	Download(ctx context.Context, designID int) (*optimizer.Asset, error)
}

// Engine is the exploration session. It owns the active catalog and the
// selection, and applies every session operation one at a time.
type Engine struct {
	mu        sync.Mutex
	emit      func(v any)
	log       *slog.Logger
	client    Optimizer
	materials *material.Catalog
	advisor   *material.Advisor
	ctrl      *selection.Controller

	// seq orders runs by start; installed is the seq of the active catalog.
	seq       uint64
	installed uint64
	runs      int
	lastRunMs int64
}

func NewEngine(client Optimizer, materials *material.Catalog, emitter func(v any), logger *slog.Logger) *Engine {
	if materials == nil {
		materials = material.Default()
	}
	if emitter == nil {
		emitter = func(any) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		emit:      emitter,
		log:       logger,
		client:    client,
		materials: materials,
		advisor:   material.NewAdvisor(materials),
	}
	e.ctrl = selection.NewController(e.forward)
	return e
}

func (e *Engine) forward(ev selection.Event) {
	e.emit(event(string(ev.Kind), ev))
}

func event(kind string, payload any) types.WSEvent {
	return types.WSEvent{Type: kind, Payload: payload, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

// PrepareOptimize applies defaults and validates req without calling the
// service. The material is canonicalized to its catalog key.
func (e *Engine) PrepareOptimize(req types.OptimizeRequest) (types.OptimizeRequest, material.Material, error) {
	req = req.WithDefaults()
	m, ok := e.materials.Resolve(req.Material)
	if !ok {
		return req, material.Material{}, fmt.Errorf("%w: unknown material %q", ErrInvalidRequest, req.Material)
	}
	req.Material = string(m.Key)
	if err := validate.Struct(req); err != nil {
		return req, material.Material{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, m, nil
}

// Optimize runs the optimizer and installs the resulting catalog. A run that
// finishes after a newer one has been installed is discarded.
func (e *Engine) Optimize(ctx context.Context, req types.OptimizeRequest) (*design.Catalog, error) {
	req, m, err := e.PrepareOptimize(req)
	if err != nil {
		return nil, err
	}
	seq := e.nextSeq()
	log := e.log.With("source", "optimize", "material", req.Material, "load", req.Load)
	log.Info("optimization requested", "pop_size", req.PopulationSize, "n_gen", req.Generations)

	start := time.Now()
	res, err := e.client.Optimize(ctx, req)
	optimizerDuration.WithLabelValues("optimize").Observe(time.Since(start).Seconds())
	if err != nil {
		optimizerRuns.WithLabelValues("optimize", "error").Inc()
		log.Error("optimization failed", "error", err)
		return nil, fmt.Errorf("optimize: %w", err)
	}
	return e.install(seq, "optimize", res, m, start)
}

// StartOptimize validates req and runs it in the background. Results and
// failures reach clients as events.
func (e *Engine) StartOptimize(req types.OptimizeRequest, timeout time.Duration) (types.OptimizeRequest, error) {
	req, _, err := e.PrepareOptimize(req)
	if err != nil {
		return req, err
	}
	go func() {
		// Detached from the HTTP request so the run survives the response.
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := e.Optimize(ctx, req); err != nil && !errors.Is(err, ErrSuperseded) {
			e.emit(event("error", map[string]any{"error": err.Error()}))
		}
	}()
	return req, nil
}

// Demo installs the service's precomputed demo catalog.
func (e *Engine) Demo(ctx context.Context) (*design.Catalog, error) {
	m, ok := e.materials.Lookup(demoMaterial)
	if !ok {
		return nil, fmt.Errorf("demo material %q not in catalog", demoMaterial)
	}
	seq := e.nextSeq()
	start := time.Now()
	res, err := e.client.Demo(ctx)
	optimizerDuration.WithLabelValues("demo").Observe(time.Since(start).Seconds())
	if err != nil {
		optimizerRuns.WithLabelValues("demo", "error").Inc()
		e.log.Error("demo fetch failed", "error", err)
		return nil, fmt.Errorf("demo: %w", err)
	}
	return e.install(seq, "demo", res, m, start)
}

func (e *Engine) nextSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *Engine) install(seq uint64, source string, res *optimizer.Result, m material.Material, start time.Time) (*design.Catalog, error) {
	cat, err := design.FromRecords(design.Meta{
		RunID:         uuid.NewString(),
		Material:      string(m.Key),
		YieldStrength: m.YieldStrength,
		Generations:   res.Generations,
		Evaluations:   res.Evaluations,
		Cached:        res.Cached,
	}, res.Records)
	if err != nil {
		optimizerRuns.WithLabelValues(source, "invalid").Inc()
		e.log.Error("optimizer returned an unusable catalog", "source", source, "error", err)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq < e.installed {
		optimizerRuns.WithLabelValues(source, "superseded").Inc()
		e.log.Warn("discarding superseded run", "source", source, "run_id", cat.RunID)
		return nil, ErrSuperseded
	}
	e.installed = seq
	e.runs++
	e.lastRunMs = time.Since(start).Milliseconds()

	e.emit(event("catalog", catalogView(cat)))
	e.ctrl.Reset(cat)

	optimizerRuns.WithLabelValues(source, "ok").Inc()
	catalogDesigns.Set(float64(cat.Len()))
	e.log.Info("catalog installed", "source", source, "run_id", cat.RunID, "designs", cat.Len(), "cached", cat.Cached)
	return cat, nil
}

func catalogView(cat *design.Catalog) types.CatalogView {
	return types.CatalogView{Meta: cat.Meta, Designs: cat.Designs()}
}

// Catalog returns the active catalog.
func (e *Engine) Catalog() (types.CatalogView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cat := e.ctrl.Catalog()
	if cat == nil {
		return types.CatalogView{}, ErrNoCatalog
	}
	return catalogView(cat), nil
}

// Activate applies a point activation from the rendering surface. Stale ids
// are ignored and reported as not applied.
func (e *Engine) Activate(a selection.Activation) (types.SelectionSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op := "select_single"
	if a.CompareRequested || e.ctrl.State().Mode == selection.Comparison {
		op = "select_for_comparison"
	}
	applied := e.ctrl.Activate(a)
	selectionEvents.WithLabelValues(op, fmt.Sprint(applied)).Inc()
	if !applied {
		e.log.Debug("ignored activation for unknown design", "design_id", a.DesignID)
	}
	return e.snapshot(), applied
}

// ToggleComparison flips between single and comparison mode.
func (e *Engine) ToggleComparison() types.SelectionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctrl.ToggleComparisonMode()
	selectionEvents.WithLabelValues("toggle_comparison", "true").Inc()
	return e.snapshot()
}

// Selection returns the selection state and the comparison on display.
func (e *Engine) Selection() types.SelectionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() types.SelectionSnapshot {
	return types.SelectionSnapshot{State: e.ctrl.State(), Comparison: e.ctrl.LastComparison()}
}

// Advise runs the material advisor. It does not touch session state.
func (e *Engine) Advise(q material.Query) (material.Advice, error) {
	advice, err := e.advisor.Advise(q)
	if err != nil {
		advisorQueries.WithLabelValues("invalid").Inc()
		return material.Advice{}, err
	}
	advisorQueries.WithLabelValues(string(advice.Recommendation.Material)).Inc()
	return advice, nil
}

// Materials lists the material catalog.
func (e *Engine) Materials() []material.Material {
	return e.materials.All()
}

// Download fetches the asset of designID, or of the most recently selected
// design when designID is nil. Nothing is requested from the service unless
// the design is in the active catalog.
func (e *Engine) Download(ctx context.Context, designID *int) (*optimizer.Asset, error) {
	e.mu.Lock()
	var id int
	switch {
	case e.ctrl.Catalog() == nil:
		e.mu.Unlock()
		return nil, ErrNoCatalog
	case designID == nil:
		d, ok := e.ctrl.Primary()
		if !ok {
			e.mu.Unlock()
			return nil, ErrNoDesignSelected
		}
		id = d.ID
	case !e.ctrl.Catalog().Contains(*designID):
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownDesign, *designID)
	default:
		id = *designID
	}
	e.mu.Unlock()

	asset, err := e.client.Download(ctx, id)
	if err != nil {
		e.log.Error("asset download failed", "design_id", id, "error", err)
		return nil, err
	}
	return asset, nil
}

// Status summarizes the session.
func (e *Engine) Status() types.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := types.StatusSnapshot{
		Status:    "operational",
		Runs:      e.runs,
		LastRunMs: e.lastRunMs,
		Selection: e.ctrl.State(),
		Materials: len(e.materials.All()),
	}
	if cat := e.ctrl.Catalog(); cat != nil {
		s.RunID = cat.RunID
		s.Material = cat.Material
		s.Designs = cat.Len()
	}
	return s
}
