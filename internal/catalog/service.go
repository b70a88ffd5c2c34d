package catalog

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/singleflight"

	"github.com/jp1648/portfolio/internal/github"
)

const meterName = "github.com/jp1648/portfolio/internal/catalog"

// RepoLister fetches the public repositories of a user.
type RepoLister interface {
	ListUserRepos(ctx context.Context, owner string) ([]github.Repo, error)
}

// Options configures a Service.
type Options struct {
	// DefaultOwner is used when a request names no owner.
	DefaultOwner string
	// ExcludedName is matched case-insensitively against repository names.
	ExcludedName string
	// Meter records resolution counts. Defaults to the global meter provider.
	Meter metric.Meter
}

// Service resolves the project catalog by cache, then network, then fallback.
// Concurrent resolves for one owner share a single cache read and fetch.
type Service struct {
	repos       RepoLister
	cache       *Cache
	owner       string
	excluded    string
	resolutions metric.Int64Counter

	resolves singleflight.Group
	fetches  singleflight.Group
}

// Snapshot is the cached catalog as stored, without any fetch.
type Snapshot struct {
	Projects  []ProjectRecord
	State     CacheState
	UpdatedAt time.Time
}

// NewService creates a catalog service over the given lister and cache.
func NewService(repos RepoLister, cache *Cache, opts Options) *Service {
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	counter, err := meter.Int64Counter(
		"portfolio.catalog.resolutions",
		metric.WithDescription("Catalog requests by the source that answered them"),
	)
	if err != nil {
		log.Printf("[warn] operation=catalog.metrics error=%v", err)
		counter = noop.Int64Counter{}
	}

	return &Service{
		repos:       repos,
		cache:       cache,
		owner:       opts.DefaultOwner,
		excluded:    opts.ExcludedName,
		resolutions: counter,
	}
}

// GetCatalog returns the owner's projects. It never fails: a failed fetch
// yields the stale cached list or an empty one.
func (s *Service) GetCatalog(ctx context.Context, owner string) []ProjectRecord {
	return s.Resolve(ctx, owner).Projects
}

// Resolve is GetCatalog with the source of the answer attached. Only the
// default owner's catalog is cached; other owners always go to the network.
func (s *Service) Resolve(ctx context.Context, owner string) Resolution {
	if owner == "" {
		owner = s.owner
	}
	if owner != s.owner {
		return s.record(ctx, s.resolveUncached(ctx, owner))
	}

	v, _, _ := s.resolves.Do(owner, func() (any, error) {
		return s.resolve(ctx, owner), nil
	})
	return s.record(ctx, v.(Resolution))
}

func (s *Service) resolve(ctx context.Context, owner string) Resolution {
	entry, state, err := s.cache.Load(ctx)
	if err != nil {
		log.Printf("[warn] operation=catalog.resolve owner=%s cache read failed: %v", owner, err)
	}
	if state == CacheFresh {
		return Resolution{Projects: nonNil(entry.Projects), Source: SourceCache}
	}

	var stale *CacheEntry
	if state == CacheExpired {
		stale = entry
	}

	projects, err := s.fetch(ctx, owner)
	if err != nil {
		res := Degrade(stale, err)
		log.Printf("[warn] operation=catalog.resolve owner=%s source=%s reason=%v", owner, res.Source, err)
		return res
	}

	if err := s.cache.Save(ctx, projects); err != nil {
		log.Printf("[error] operation=catalog.resolve owner=%s error=%v", owner, err)
	}
	return Resolution{Projects: projects, Source: SourceNetwork}
}

func (s *Service) resolveUncached(ctx context.Context, owner string) Resolution {
	projects, err := s.fetch(ctx, owner)
	if err != nil {
		log.Printf("[warn] operation=catalog.resolve owner=%s source=%s reason=%v", owner, SourceEmpty, err)
		return Degrade(nil, err)
	}
	return Resolution{Projects: projects, Source: SourceNetwork}
}

// Refresh fetches the catalog and overwrites the cache regardless of its
// age. Unlike Resolve it reports fetch failures. Catalogs of owners other
// than the default are returned without being stored.
func (s *Service) Refresh(ctx context.Context, owner string) ([]ProjectRecord, error) {
	if owner == "" {
		owner = s.owner
	}
	projects, err := s.fetch(ctx, owner)
	if err != nil {
		return nil, err
	}
	if owner != s.owner {
		return projects, nil
	}
	if err := s.cache.Save(ctx, projects); err != nil {
		return projects, err
	}
	log.Printf("[info] operation=catalog.refresh owner=%s projects=%d", owner, len(projects))
	return projects, nil
}

// Purge drops the cached catalog so the next request goes to the network.
func (s *Service) Purge(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// Snapshot reads the cached catalog without fetching, expiring or counting it.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	entry, state, err := s.cache.Peek(ctx)
	if err != nil {
		return Snapshot{Projects: []ProjectRecord{}}, err
	}
	if entry == nil {
		return Snapshot{Projects: []ProjectRecord{}, State: state}, nil
	}
	return Snapshot{
		Projects:  nonNil(entry.Projects),
		State:     state,
		UpdatedAt: time.UnixMilli(entry.Timestamp).UTC(),
	}, nil
}

// fetch lists and filters the owner's repositories. Overlapping calls for
// the same owner, from Resolve or Refresh, share one request.
func (s *Service) fetch(ctx context.Context, owner string) ([]ProjectRecord, error) {
	v, err, _ := s.fetches.Do(owner, func() (any, error) {
		repos, err := s.repos.ListUserRepos(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("fetch catalog for %s: %w", owner, err)
		}
		return Filter(owner, s.excluded, repos), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ProjectRecord), nil
}

func (s *Service) record(ctx context.Context, res Resolution) Resolution {
	s.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(res.Source))))
	return res
}

func nonNil(projects []ProjectRecord) []ProjectRecord {
	if projects == nil {
		return []ProjectRecord{}
	}
	return projects
}
