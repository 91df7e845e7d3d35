// Package ids generates identifiers for stored records.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewEntityID returns a lexicographically sortable identifier. Entities use
// ULIDs so prefix listings over the object store come back in creation order.
func NewEntityID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewTypeID returns an identifier for an entity type definition.
func NewTypeID() string { return uuid.NewString() }

// NewOrgID returns an identifier for an organization.
func NewOrgID() string { return uuid.NewString() }
