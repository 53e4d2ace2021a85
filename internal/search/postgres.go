package search

import (
	"context"
	"strings"

	"servidores/api/internal/store"
)

// PeopleStore is the slice of the PostgreSQL store the fallback searcher needs.
type PeopleStore interface {
	SearchPeople(ctx context.Context, query string, limit int) ([]store.Person, error)
	ListPeople(ctx context.Context) ([]store.Person, error)
}

// Postgres implements Searcher with substring matching in PostgreSQL.
type Postgres struct {
	people PeopleStore
}

func NewPostgres(people PeopleStore) *Postgres {
	return &Postgres{people: people}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Person, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	rows, err := p.people.SearchPeople(ctx, q.Text, q.Limit)
	if err != nil {
		return nil, err
	}
	people := make([]Person, 0, len(rows))
	for _, row := range rows {
		people = append(people, fromStore(row))
	}
	return people, nil
}

// LoadAll reads every person for an index rebuild.
func (p *Postgres) LoadAll(ctx context.Context) ([]Person, error) {
	rows, err := p.people.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	people := make([]Person, 0, len(rows))
	for _, row := range rows {
		people = append(people, fromStore(row))
	}
	return people, nil
}
