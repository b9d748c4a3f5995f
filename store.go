package acme

// CollectionStore persists certificate collections with history. Save
// always inserts; Get resolves an identifier to its newest row by issuance
// time.
type CollectionStore interface {
	// Get returns the newest collection for identifier, or
	// ErrCollectionNotFound.
	Get(identifier string) (*CertCollection, error)
	// Save appends a collection row.
	Save(col CertCollection) error
	// List returns the newest collection per identifier.
	List() ([]CertCollection, error)
	// DeleteByID removes a single history row.
	DeleteByID(id int64) error
}
