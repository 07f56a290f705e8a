package query

// QuickQuery is a canned one-tap question offered to the user.
type QuickQuery struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Store exposes quick-query retrieval for HTTP handlers.
type Store interface {
	List() []QuickQuery
	FindByID(id string) (QuickQuery, bool)
}

// MemoryStore implements Store with an in-memory slice, suitable for MVP.
type MemoryStore struct {
	items []QuickQuery
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied queries.
func NewMemoryStore(items []QuickQuery) *MemoryStore {
	return &MemoryStore{items: append([]QuickQuery(nil), items...)}
}

// List returns the predefined quick-query catalogue.
func (s *MemoryStore) List() []QuickQuery {
	return append([]QuickQuery(nil), s.items...)
}

// FindByID looks up a quick query by identifier.
func (s *MemoryStore) FindByID(id string) (QuickQuery, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return QuickQuery{}, false
}

// Seed provides the default catalogue shown beneath the chat input.
func Seed() []QuickQuery {
	return []QuickQuery{
		{ID: "mandi-wheat", Text: "आज गेहूं का भाव क्या है?"},
		{ID: "weather", Text: "मौसम कैसा है?"},
		{ID: "pm-kisan", Text: "पीएम किसान योजना"},
		{ID: "crop-insurance", Text: "फसल बीमा"},
	}
}
