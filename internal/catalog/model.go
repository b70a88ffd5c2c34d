// Package catalog builds the project gallery from the owner's public
// repositories, backed by an expiring persisted cache.
package catalog

import (
	"strings"

	"github.com/jp1648/portfolio/internal/github"
)

// ProjectRecord is one card in the project gallery.
type ProjectRecord struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
}

// CacheEntry is the persisted snapshot of a catalog.
// Timestamp is unix milliseconds.
type CacheEntry struct {
	Projects  []ProjectRecord `json:"projects"`
	Timestamp int64           `json:"timestamp"`
}

// Excluded reports whether a repository is left out of the catalog: the
// owner's profile repository (exact match) and the site's own repository
// (case-insensitive match on excluded).
func Excluded(owner, excluded, name string) bool {
	if name == owner {
		return true
	}
	return excluded != "" && strings.EqualFold(name, excluded)
}

// Filter converts repositories into catalog records in response order,
// dropping excluded names and numbering the rest from 0.
func Filter(owner, excluded string, repos []github.Repo) []ProjectRecord {
	out := make([]ProjectRecord, 0, len(repos))
	for _, repo := range repos {
		if Excluded(owner, excluded, repo.Name) {
			continue
		}
		out = append(out, ProjectRecord{
			ID:          len(out),
			Name:        repo.Name,
			Description: repo.Description,
			URL:         repo.HTMLURL,
		})
	}
	return out
}
