package store

import "time"

// Repository is a remote package repository together with its freshness
// marker. An empty LastModified and EntityTag make the next sync fetch the
// index unconditionally.
type Repository struct {
	ID           int64
	Name         string
	Address      string
	Enabled      bool
	LastModified string
	EntityTag    string
	UpdatedAt    time.Time
}

// HasFreshnessMarker reports whether either validator is set.
func (r *Repository) HasFreshnessMarker() bool {
	return r.LastModified != "" || r.EntityTag != ""
}
