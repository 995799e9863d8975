// Package repository provides the swappable persistence media behind the
// vector store and the knowledge records: in-memory, a local JSON file
// store, and postgres with pgvector.
package repository

import (
	"sort"

	"github.com/corpuslabs/corpusd/internal/domain"
)

func sortKnowledgeByCreation(items []*domain.Knowledge) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
