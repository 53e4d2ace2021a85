// Package search looks people up by name, phone or cedula.
package search

import (
	"context"

	"servidores/api/internal/store"
)

// Person is a single search hit returned to the caller.
type Person struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Contact    string `json:"contact,omitempty"`
	Cedula     string `json:"cedula,omitempty"`
	StageLabel string `json:"stageLabel,omitempty"`
	Week       int    `json:"weekNumber,omitempty"`
}

// Query describes a search request. Text is expected to be normalised already.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Person `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Searcher can execute a people search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Person, error)
	Healthy() bool
}

// StageResolver resolves a person's current program placement.
type StageResolver interface {
	CurrentStage(ctx context.Context, personID string) (store.Stage, bool, error)
}

func fromStore(p store.Person) Person {
	return Person{
		ID:         p.ID,
		Name:       p.Name,
		Contact:    p.Contact,
		Cedula:     p.Cedula,
		StageLabel: p.StageLabel,
		Week:       p.Week,
	}
}
