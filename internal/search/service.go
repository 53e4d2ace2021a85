package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"servidores/api/internal/util"
)

// Service is the facade that tries Meilisearch first and falls back to PostgreSQL. Hits
// are enriched with each person's current stage, and responses are shared through Redis
// when a RedisCache is configured.
type Service struct {
	meili       *Meili
	pg          *Postgres
	stages      StageResolver
	shared      *RedisCache
	logger      *zap.Logger
	concurrency int
}

type ServiceOptions struct {
	Meili             *Meili      // optional
	Shared            *RedisCache // optional
	Stages            StageResolver
	EnrichConcurrency int
	Logger            *zap.Logger
}

func NewService(pg *Postgres, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.EnrichConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		meili:       opts.Meili,
		pg:          pg,
		stages:      opts.Stages,
		shared:      opts.Shared,
		logger:      logger.Named("search"),
		concurrency: concurrency,
	}
}

// Search runs a people search for an already normalised query.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	key := fmt.Sprintf("%d:%s", q.Limit, q.Text)
	if s.shared != nil {
		people, ok, err := s.shared.Get(ctx, key)
		if err != nil {
			s.logger.Warn("shared cache read failed", zap.Error(err))
		} else if ok {
			return Response{Results: people, Total: len(people), Query: q.Text, Source: "cache"}, nil
		}
	}

	people, source, err := s.lookup(ctx, q)
	if err != nil {
		return Response{Results: []Person{}, Query: q.Text}, err
	}
	if people == nil {
		people = []Person{}
	}
	if source == "meili" {
		s.enrich(ctx, people)
	}

	if s.shared != nil {
		if err := s.shared.Set(ctx, key, people); err != nil {
			s.logger.Warn("shared cache write failed", zap.Error(err))
		}
	}
	return Response{Results: people, Total: len(people), Query: q.Text, Source: source}, nil
}

func (s *Service) lookup(ctx context.Context, q Query) ([]Person, string, error) {
	if s.meili != nil && s.meili.Healthy() {
		people, err := s.meili.Search(ctx, q)
		if err == nil {
			return people, "meili", nil
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}
	people, err := s.pg.Search(ctx, q)
	if err != nil {
		return nil, "postgres", fmt.Errorf("search people: %w", err)
	}
	return people, "postgres", nil
}

// enrich resolves every hit's current stage concurrently. A failed lookup leaves the hit
// as indexed.
func (s *Service) enrich(ctx context.Context, people []Person) {
	if s.stages == nil || len(people) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range people {
		g.Go(func() error {
			stage, ok, err := s.stages.CurrentStage(gctx, people[i].ID)
			if err != nil {
				s.logger.Debug("stage lookup failed", zap.String("person_id", people[i].ID), zap.Error(err))
				return nil
			}
			if ok {
				people[i].StageLabel = stage.Label
				people[i].Week = stage.Week
			} else {
				people[i].StageLabel = ""
				people[i].Week = 0
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Invalidate drops shared cached responses after a write that may change search results.
func (s *Service) Invalidate(ctx context.Context) {
	if s.shared == nil {
		return
	}
	if err := s.shared.Clear(ctx); err != nil {
		s.logger.Warn("shared cache clear failed", zap.Error(err))
	}
}

// IndexPerson pushes a person to Meilisearch (fire-and-forget).
func (s *Service) IndexPerson(p Person) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPeople([]Person{p}); err != nil {
			s.logger.Warn("index person", zap.String("person_id", p.ID), zap.Error(err))
		}
	}()
}

// RemovePerson drops a person from Meilisearch (fire-and-forget).
func (s *Service) RemovePerson(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePerson(id); err != nil {
			s.logger.Warn("delete person", zap.String("person_id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG reads every person from PostgreSQL and pushes them to Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	people, err := s.pg.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexPeople(people); err != nil {
		s.logger.Warn("reindex people", zap.Error(err))
		return
	}
	s.logger.Info("reindexed people", zap.Int("count", len(people)))
}

// Normalize folds a raw query for lookup and cache keys.
func Normalize(query string) string {
	return util.Fold(query)
}
