package projectcache

import (
	"context"
	"fmt"
	"log"
	"time"

	apperrors "github.com/Scouterna/j26-signupinfo/internal/platform/errors"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/scoutnet"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/projectcache"

// refreshKey is the single singleflight key; every refresh covers all
// projects.
const refreshKey = "refresh"

// Fetcher retrieves the raw documents of all projects in one round.
type Fetcher interface {
	FetchAll(ctx context.Context, projects []scoutnet.Project) ([]forms.RawProject, error)
}

// Decoder turns one project's raw documents into the decoded model.
type Decoder interface {
	Decode(raw forms.RawProject) *forms.Project
}

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	Cache    *Cache
	Fetcher  Fetcher
	Decoder  Decoder
	Projects []scoutnet.Project
	Logf     func(string, ...any)
	// OnInstall, when set, runs after every installed snapshot, whichever
	// caller triggered the refresh.
	OnInstall func(*Snapshot)
}

// Refresher runs the fetch, decode and install pipeline. Concurrent callers
// share one in-flight refresh.
type Refresher struct {
	cache    *Cache
	fetcher  Fetcher
	decoder  Decoder
	projects []scoutnet.Project
	logf      func(string, ...any)
	onInstall func(*Snapshot)
	tracer    trace.Tracer
	group     singleflight.Group
}

// NewRefresher validates cfg and builds a Refresher.
func NewRefresher(cfg RefresherConfig) (*Refresher, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if len(cfg.Projects) == 0 {
		return nil, fmt.Errorf("at least one project is required")
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Refresher{
		cache:    cfg.Cache,
		fetcher:  cfg.Fetcher,
		decoder:  cfg.Decoder,
		projects: append([]scoutnet.Project(nil), cfg.Projects...),
		logf:      cfg.Logf,
		onInstall: cfg.OnInstall,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Cache returns the cache the refresher installs into.
func (r *Refresher) Cache() *Cache {
	return r.cache
}

// Refresh runs a refresh now, or joins the one already in flight. The
// refresh itself is not canceled with ctx: it either installs a complete
// snapshot or leaves the current one untouched. ctx only bounds how long the
// caller waits for the outcome.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	resultCh := r.group.DoChan(refreshKey, func() (any, error) {
		return r.run(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Snapshot), nil
	}
}

// EnsureFresh returns a snapshot that is not stale, refreshing first when
// needed. A failed refresh keeps serving the previous snapshot; only a cache
// that has never loaded reports unavailable.
func (r *Refresher) EnsureFresh(ctx context.Context) (*Snapshot, error) {
	if current, loaded := r.cache.Current(); loaded && !r.cache.isStaleAt(current, r.cache.now()) {
		return current, nil
	}
	snap, err := r.Refresh(ctx)
	if err == nil {
		return snap, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	// Another refresh may have succeeded while this one failed.
	if current, loaded := r.cache.Current(); loaded {
		r.logf("serving snapshot %s from %s after failed refresh", current.Round, current.UpdatedAt.Format(time.RFC3339))
		return current, nil
	}
	return nil, apperrors.Wrap(apperrors.CodeUnavailable, "project cache is not loaded", err)
}

func (r *Refresher) run(ctx context.Context) (snap *Snapshot, err error) {
	round := uuid.New()
	ctx, span := r.tracer.Start(ctx, "projectcache.refresh", trace.WithAttributes(
		attribute.String("projectcache.round", round.String()),
		attribute.Int("projectcache.projects", len(r.projects)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	r.logf("refresh %s: fetching %d projects", round, len(r.projects))
	raws, err := r.fetcher.FetchAll(ctx, r.projects)
	if err != nil {
		r.logf("refresh %s failed, keeping current snapshot: %v", round, err)
		return nil, apperrors.Wrap(apperrors.CodeUpstreamFetch, "refresh project cache", err)
	}

	decoded := make([]*forms.Project, 0, len(raws))
	for _, raw := range raws {
		decoded = append(decoded, r.decoder.Decode(raw))
	}
	snap = r.cache.Install(round, decoded)
	r.logf("refresh %s: installed %d projects in %s", round, len(decoded), time.Since(start).Round(time.Millisecond))
	if r.onInstall != nil {
		r.onInstall(snap)
	}
	return snap, nil
}
