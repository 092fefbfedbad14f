package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
)

// Reconciler rebuilds the page model from the placement store on startup,
// dropping records whose widget no longer resolves on the host.
type Reconciler struct {
	Store   placement.Store
	Host    host.Adapter
	Model   *pages.Model
	Timeout time.Duration
	Logger  *zap.Logger
}

// Report summarizes one reconciliation pass. Reclaimed counts host ids
// that no stored record referenced.
type Report struct {
	Loaded    int
	Kept      int
	Dropped   int
	Clamped   int
	Resized   int
	Reclaimed int
	TimedOut  bool
}

type outcome struct {
	records   []placement.Record
	bindings  map[int]host.Handle
	report    Report
	abandoned bool
}

func (o outcome) dirty() bool {
	return o.report.Dropped > 0 || o.report.Clamped > 0 || o.report.Resized > 0
}

// Run reconciles once. It never fails: load and save errors are logged.
// If the host does not answer within Timeout the pages start empty, the
// loaded records are held by the model so later writes keep them, and
// nothing is written by the pass itself.
func (r *Reconciler) Run(ctx context.Context) Report {
	log := r.logger()
	records, err := r.Store.Load(ctx)
	if err != nil {
		log.Error("load placements, starting with empty pages", zap.Error(err))
		r.Model.Restore(nil, nil)
		return Report{}
	}

	hostCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		hostCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() { done <- r.reconcile(hostCtx, records) }()

	var out outcome
	select {
	case out = <-done:
	case <-hostCtx.Done():
		out.abandoned = true
	}
	if out.abandoned {
		log.Warn("reconciliation timed out, starting with empty pages",
			zap.Duration("timeout", r.Timeout), zap.Int("held", len(records)), zap.Error(hostCtx.Err()))
		r.Model.Restore(nil, nil)
		r.Model.Hold(records)
		return Report{Loaded: len(records), TimedOut: true}
	}

	if out.dirty() {
		// the timeout bounds the host pass, not this write
		if err := r.Store.Save(context.WithoutCancel(ctx), out.records); err != nil {
			log.Error("persist reconciled placements", zap.Error(err))
		}
	}
	r.Model.Restore(out.records, out.bindings)
	out.report.Reclaimed = r.sweep(ctx, out.bindings)
	log.Info("reconciliation complete",
		zap.Int("loaded", out.report.Loaded),
		zap.Int("kept", out.report.Kept),
		zap.Int("dropped", out.report.Dropped),
		zap.Int("clamped", out.report.Clamped),
		zap.Int("resized", out.report.Resized),
		zap.Int("reclaimed", out.report.Reclaimed))
	return out.report
}

func (r *Reconciler) reconcile(ctx context.Context, records []placement.Record) outcome {
	log := r.logger()
	out := outcome{bindings: make(map[int]host.Handle)}
	out.report.Loaded = len(records)

	maxPages := r.Model.MaxPages()
	grid := r.Model.Grid()
	byPage := make([][]placement.Record, maxPages)
	seen := make(map[int]bool, len(records))

	for _, rec := range records {
		fields := []zap.Field{zap.Int("widget_id", rec.WidgetID), zap.Int("page", rec.Page), zap.Stringer("provider", rec.Provider)}

		if seen[rec.WidgetID] {
			// the id belongs to the earlier record; do not reclaim it
			log.Warn("dropping duplicate placement", fields...)
			out.report.Dropped++
			continue
		}

		if p := clampPage(rec.Page, maxPages); p != rec.Page {
			log.Warn("clamping page index", append(fields, zap.Int("clamped_to", p))...)
			rec.Page = p
			out.report.Clamped++
		}
		if s := clampSize(rec.Size, grid); s != rec.Size {
			log.Warn("clamping legacy widget size", append(fields, zap.Int("width", s.Width), zap.Int("height", s.Height))...)
			rec.Size = s
			out.report.Resized++
		}

		handle, err := r.bind(ctx, rec)
		if ctx.Err() != nil {
			// the caller discards this pass, so reclaim nothing
			return outcome{abandoned: true}
		}
		if err != nil {
			log.Info("dropping orphaned widget", append(fields, zap.Error(err))...)
			out.report.Dropped++
			if rerr := r.Host.ReclaimID(ctx, rec.WidgetID); rerr != nil {
				log.Warn("reclaim orphaned widget id", append(fields, zap.Error(rerr))...)
			}
			continue
		}

		seen[rec.WidgetID] = true
		out.bindings[rec.WidgetID] = handle
		byPage[rec.Page] = append(byPage[rec.Page], rec)
	}

	for _, list := range byPage {
		out.records = append(out.records, list...)
	}
	out.report.Kept = len(out.records)
	return out
}

// sweep hands back host ids that no kept record references, such as an id
// allocated by a process that stopped before its first snapshot write.
// Hosts that cannot list their ids are left alone.
func (r *Reconciler) sweep(ctx context.Context, kept map[int]host.Handle) int {
	enum, ok := r.Host.(host.Enumerator)
	if !ok {
		return 0
	}
	n := 0
	for _, id := range enum.Allocated() {
		if _, live := kept[id]; live {
			continue
		}
		if err := r.Host.ReclaimID(ctx, id); err != nil {
			r.logger().Warn("reclaim unreferenced widget id", zap.Int("widget_id", id), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (r *Reconciler) bind(ctx context.Context, rec placement.Record) (host.Handle, error) {
	if !rec.Provider.Valid() {
		return host.Handle{}, host.ErrProviderUnavailable
	}
	if !r.Host.IsValid(ctx, rec.WidgetID) {
		return host.Handle{}, host.ErrProviderUnavailable
	}
	return r.Host.BindView(ctx, rec.WidgetID, rec.Provider)
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func clampPage(p, maxPages int) int {
	if p < 0 {
		return 0
	}
	if p >= maxPages {
		return maxPages - 1
	}
	return p
}

func clampSize(s placement.Size, grid pages.GridCapacity) placement.Size {
	return placement.Size{
		Width:  clamp(s.Width, 1, grid.Columns()),
		Height: clamp(s.Height, 1, grid.MaxRows()),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
