package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tenantcore/internal/appconfig"
	"tenantcore/internal/blob"
	"tenantcore/internal/entitystore"
	"tenantcore/internal/obs"
	"tenantcore/pkg/domain"
)

// Materializer regenerates bundles and manifests from the authoritative
// entity records. Regeneration runs synchronously on the write path; a failed
// unit leaves a stale bundle behind, which the next regeneration or a full
// rebuild repairs. Per-unit failures are logged, never propagated into the
// primary write result.
type Materializer struct {
	entities *entitystore.Store
	blobs    blob.Store
	config   *appconfig.Cache
	log      *zap.Logger
	now      func() time.Time
}

// Option customizes a Materializer.
type Option func(*Materializer)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// New returns a materializer reading entities through store and writing
// bundles through the store's blob backend.
func New(store *entitystore.Store, config *appconfig.Cache, log *zap.Logger, opts ...Option) *Materializer {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Materializer{
		entities: store,
		blobs:    store.Blobs(),
		config:   config,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply regenerates every read-model affected by the event. The returned
// error reports structural failures (config or index unreadable); individual
// bundle failures are logged and skipped.
func (m *Materializer) Apply(ctx context.Context, ev Event) error {
	var (
		trigger string
		err     error
	)
	switch e := ev.(type) {
	case EntityWritten:
		trigger = "entity"
		err = m.regenerateType(ctx, e.TypeID)
	case EntityTypeWritten:
		trigger = "entity_type"
		err = m.regenerateType(ctx, e.TypeID)
	case OrgProfileWritten:
		trigger = "org_profile"
		err = m.regenerateOrg(ctx, e.OrgID)
	case OrgPermissionsWritten:
		trigger = "org_permissions"
		err = m.regenerateOrg(ctx, e.OrgID)
	default:
		return fmt.Errorf("materialize: unknown event %T", ev)
	}
	obs.ObserveMaterialization(trigger, err)
	return err
}

func isNotFound(err error) bool {
	var nf domain.NotFoundError
	return errors.As(err, &nf)
}
