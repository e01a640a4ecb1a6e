package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/files/internal/tenant"
)

// MetaStore persists one Meta per (site, object kind, object id, key).
//
// Access is plain read-then-write: two simultaneous uploads or crops for
// the same object race and the later write wins. That matches the
// behaviour this service replaced and is accepted; callers needing a
// stronger guarantee must serialize upstream.
type MetaStore interface {
	// Get returns the record, or ErrMetaNotFound.
	Get(ctx context.Context, kind ObjectKind, itemID int64, key string) (*Meta, error)
	// Put creates or fully replaces the record.
	Put(ctx context.Context, kind ObjectKind, itemID int64, key string, m *Meta) error
	// UpdateCrop overlays the crop rectangle onto an existing record,
	// leaving every other field untouched. ErrMetaNotFound when absent.
	UpdateCrop(ctx context.Context, kind ObjectKind, itemID int64, key string, x, y, w, h int) error
	// Delete removes the record. Deleting an absent record is a no-op.
	Delete(ctx context.Context, kind ObjectKind, itemID int64, key string) error
}

// PGStore implements MetaStore on Postgres. The site scope is taken from
// the request context (see the tenant package), defaulting to the root site.
type PGStore struct {
	db       *pgxpool.Pool
	rootSite int64
}

// NewPGStore creates a PGStore bound to the given root site.
func NewPGStore(db *pgxpool.Pool, rootSite int64) *PGStore {
	return &PGStore{db: db, rootSite: rootSite}
}

func (s *PGStore) site(ctx context.Context) int64 {
	return tenant.SiteID(ctx, s.rootSite)
}

// Get fetches the record for (site, kind, itemID, key).
func (s *PGStore) Get(ctx context.Context, kind ObjectKind, itemID int64, key string) (*Meta, error) {
	m := &Meta{}
	err := s.db.QueryRow(ctx,
		`SELECT remote_url, crop_x, crop_y, crop_w, crop_h, ui_width, original_width
		 FROM asset_meta
		 WHERE site_id = $1 AND object_kind = $2 AND object_id = $3 AND meta_key = $4`,
		s.site(ctx), kind, itemID, key,
	).Scan(&m.RemoteURL, &m.CropX, &m.CropY, &m.CropW, &m.CropH, &m.UIWidth, &m.OriginalWidth)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMetaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset meta: %w", err)
	}
	return m, nil
}

// Put upserts the record for (site, kind, itemID, key).
func (s *PGStore) Put(ctx context.Context, kind ObjectKind, itemID int64, key string, m *Meta) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO asset_meta
		   (site_id, object_kind, object_id, meta_key,
		    remote_url, crop_x, crop_y, crop_w, crop_h, ui_width, original_width)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (site_id, object_kind, object_id, meta_key) DO UPDATE SET
		   remote_url     = EXCLUDED.remote_url,
		   crop_x         = EXCLUDED.crop_x,
		   crop_y         = EXCLUDED.crop_y,
		   crop_w         = EXCLUDED.crop_w,
		   crop_h         = EXCLUDED.crop_h,
		   ui_width       = EXCLUDED.ui_width,
		   original_width = EXCLUDED.original_width,
		   updated_at     = now()`,
		s.site(ctx), kind, itemID, key,
		m.RemoteURL, m.CropX, m.CropY, m.CropW, m.CropH, m.UIWidth, m.OriginalWidth,
	)
	if err != nil {
		return fmt.Errorf("put asset meta: %w", err)
	}
	return nil
}

// UpdateCrop overlays the crop rectangle on an existing record.
func (s *PGStore) UpdateCrop(ctx context.Context, kind ObjectKind, itemID int64, key string, x, y, w, h int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE asset_meta
		 SET crop_x = $5, crop_y = $6, crop_w = $7, crop_h = $8, updated_at = now()
		 WHERE site_id = $1 AND object_kind = $2 AND object_id = $3 AND meta_key = $4`,
		s.site(ctx), kind, itemID, key, x, y, w, h,
	)
	if err != nil {
		return fmt.Errorf("update asset crop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMetaNotFound
	}
	return nil
}

// Delete removes the record; absent records are a no-op.
func (s *PGStore) Delete(ctx context.Context, kind ObjectKind, itemID int64, key string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM asset_meta
		 WHERE site_id = $1 AND object_kind = $2 AND object_id = $3 AND meta_key = $4`,
		s.site(ctx), kind, itemID, key,
	)
	if err != nil {
		return fmt.Errorf("delete asset meta: %w", err)
	}
	return nil
}
