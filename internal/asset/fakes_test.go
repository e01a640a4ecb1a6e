package asset

import (
	"context"
	"fmt"
	"io"

	"github.com/gatherly/files/internal/config"
	"github.com/gatherly/files/internal/directory"
)

func testConfig() *config.Config {
	return &config.Config{
		RootSiteID:             1,
		RootDomain:             "gatherly.test",
		SiteBaseURL:            "https://gatherly.test",
		AvatarFullWidth:        150,
		AvatarFullHeight:       150,
		AvatarOriginalMaxWidth: 450,
		GravatarBase:           "www.gravatar.com/avatar/",
		GravatarDefaultUser:    "wavatar",
		GravatarDefaultGroup:   "wavatar",
		GravatarDefaultBlog:    "wavatar",
		CoverWidth:             1300,
		CoverHeight:            225,
	}
}

// fakeStore is an in-memory MetaStore. Values are copied on the way in and
// out so tests observe persistence, not shared pointers.
type fakeStore struct {
	records map[string]Meta
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]Meta)}
}

func storeKey(kind ObjectKind, itemID int64, key string) string {
	return fmt.Sprintf("%s/%d/%s", kind, itemID, key)
}

func (s *fakeStore) Get(_ context.Context, kind ObjectKind, itemID int64, key string) (*Meta, error) {
	m, ok := s.records[storeKey(kind, itemID, key)]
	if !ok {
		return nil, ErrMetaNotFound
	}
	out := m
	return &out, nil
}

func (s *fakeStore) Put(_ context.Context, kind ObjectKind, itemID int64, key string, m *Meta) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.records[storeKey(kind, itemID, key)] = *m
	return nil
}

func (s *fakeStore) UpdateCrop(_ context.Context, kind ObjectKind, itemID int64, key string, x, y, w, h int) error {
	m, ok := s.records[storeKey(kind, itemID, key)]
	if !ok {
		return ErrMetaNotFound
	}
	m.CropX, m.CropY, m.CropW, m.CropH = x, y, w, h
	s.records[storeKey(kind, itemID, key)] = m
	return nil
}

func (s *fakeStore) Delete(_ context.Context, kind ObjectKind, itemID int64, key string) error {
	delete(s.records, storeKey(kind, itemID, key))
	return nil
}

type uploadCall struct {
	URL         string
	ContentType string
	Size        int64
}

// fakeClient records backend calls and fails on demand.
type fakeClient struct {
	base      string
	uploads   []uploadCall
	deletes   []string
	uploadErr error
	deleteErr error
}

func (c *fakeClient) BaseURL() string { return c.base }

func (c *fakeClient) Upload(_ context.Context, targetURL string, _ io.Reader, size int64, contentType string) error {
	if c.uploadErr != nil {
		return c.uploadErr
	}
	c.uploads = append(c.uploads, uploadCall{URL: targetURL, ContentType: contentType, Size: size})
	return nil
}

func (c *fakeClient) Delete(_ context.Context, targetURL string) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deletes = append(c.deletes, targetURL)
	return nil
}

type fakePurger struct {
	purged []string
	err    error
}

func (p *fakePurger) Purge(_ context.Context, url string) error {
	if p.err != nil {
		return p.err
	}
	p.purged = append(p.purged, url)
	return nil
}

// fakeDirectory serves existence and email lookups from maps.
type fakeDirectory struct {
	users  map[int64]string
	groups map[int64]bool
}

func (d *fakeDirectory) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := d.users[id]
	return ok, nil
}

func (d *fakeDirectory) GroupExists(_ context.Context, id int64) (bool, error) {
	return d.groups[id], nil
}

func (d *fakeDirectory) UserEmail(_ context.Context, id int64) (string, error) {
	email, ok := d.users[id]
	if !ok {
		return "", directory.ErrNotFound
	}
	return email, nil
}
