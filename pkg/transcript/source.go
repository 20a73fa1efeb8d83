package transcript

// Source is a reference to a retrieved document chunk that supported an
// answer. Sources have no identity beyond structural equality; duplicates are
// kept in the order the backend emitted them.
type Source struct {
	// Source is the origin document identifier.
	Source string `json:"source"`

	// ID is the backend's identifier for the chunk, when provided.
	ID string `json:"id,omitempty"`

	ChunkIndex *int `json:"chunk_index,omitempty"`
	Page       *int `json:"page,omitempty"`

	// Score is a relevance confidence. No range is enforced.
	Score *float64 `json:"score,omitempty"`
}

// Equal reports whether s and o carry the same values.
func (s Source) Equal(o Source) bool {
	return s.Source == o.Source &&
		s.ID == o.ID &&
		equalPtr(s.ChunkIndex, o.ChunkIndex) &&
		equalPtr(s.Page, o.Page) &&
		equalPtr(s.Score, o.Score)
}

func (s Source) clone() Source {
	s.ChunkIndex = clonePtr(s.ChunkIndex)
	s.Page = clonePtr(s.Page)
	s.Score = clonePtr(s.Score)
	return s
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
