package catalog

// Source tells where a resolved catalog came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceStale   Source = "stale"
	SourceEmpty   Source = "empty"
)

// Resolution is the tagged result of a catalog request. Reason is set for
// the degraded sources.
type Resolution struct {
	Projects []ProjectRecord
	Source   Source
	Reason   error
}

// Degraded reports whether the fetch failed and a fallback was used.
func (r Resolution) Degraded() bool {
	return r.Source == SourceStale || r.Source == SourceEmpty
}

// Degrade picks the fallback after a failed fetch: the stale entry observed
// during the request if there was one, otherwise an empty catalog.
func Degrade(stale *CacheEntry, reason error) Resolution {
	if stale != nil {
		return Resolution{Projects: nonNil(stale.Projects), Source: SourceStale, Reason: reason}
	}
	return Resolution{Projects: []ProjectRecord{}, Source: SourceEmpty, Reason: reason}
}
