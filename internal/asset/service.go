package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/gatherly/files/internal/config"
	"github.com/gatherly/files/internal/directory"
	"github.com/gatherly/files/internal/files"
	"github.com/gatherly/files/internal/imagefile"
	"github.com/gatherly/files/internal/tenant"
)

// Service orchestrates uploads, crops, and deletes against the file
// backend and the metadata store.
//
// Every operation runs synchronously inside one request; nothing is
// queued or retried. Backend calls fail closed on timeout.
type Service struct {
	store  MetaStore
	client files.Client
	purger files.Purger
	dir    directory.Lookup
	cfg    *config.Config

	// DefaultDir resolves the avatar subdirectory for an object kind when
	// the caller names none. Overridable for custom object kinds.
	DefaultDir func(ObjectKind) string
}

// NewService creates a Service.
func NewService(store MetaStore, client files.Client, purger files.Purger, dir directory.Lookup, cfg *config.Config) *Service {
	return &Service{
		store:      store,
		client:     client,
		purger:     purger,
		dir:        dir,
		cfg:        cfg,
		DefaultDir: DefaultAvatarDir,
	}
}

// UploadInput describes one raw upload.
type UploadInput struct {
	Object   ObjectKind
	ItemID   int64
	FileName string
	Data     []byte
	// UIWidth is the display width of the cropping UI at upload time,
	// 0 when the upload was non-interactive.
	UIWidth int
}

// UploadResult reports where the asset landed plus any non-fatal notice.
type UploadResult struct {
	URL     string `json:"url"`
	Warning string `json:"warning,omitempty"`
}

// UploadAvatar normalizes the file, pushes it to the backend under a
// deterministic path, and records fresh crop metadata. A prior record is
// left untouched when anything fails.
func (s *Service) UploadAvatar(ctx context.Context, in UploadInput) (*UploadResult, error) {
	var out *UploadResult
	err := tenant.OnSite(ctx, s.cfg.RootSiteID, func(ctx context.Context) error {
		if err := s.checkObject(ctx, in.Object, in.ItemID); err != nil {
			return err
		}

		img, err := imagefile.Normalize(in.Data, imagefile.TypeByName(in.FileName))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrRemoteUpload, err)
		}

		dir := s.DefaultDir(in.Object)
		target := s.targetURL(dir, in.ItemID, "avatar"+targetExt(img))

		if err := s.client.Upload(ctx, target, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIME); err != nil {
			return fmt.Errorf("%w: %s", ErrRemoteUpload, err)
		}

		m := &Meta{
			RemoteURL:     target,
			CropX:         0,
			CropY:         0,
			CropW:         img.Width,
			CropH:         img.Height,
			UIWidth:       in.UIWidth,
			OriginalWidth: img.Width,
		}
		if err := s.store.Put(ctx, in.Object, in.ItemID, MetaKey(dir), m); err != nil {
			return err
		}

		out = &UploadResult{URL: target, Warning: s.uploadWarning(img)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CaptureAvatar stores a non-interactive capture (e.g. webcam) for a user:
// MIME is sniffed from the bytes, and the crop defaults to the full
// display frame since no cropping UI was involved.
func (s *Service) CaptureAvatar(ctx context.Context, itemID int64, data []byte) (*UploadResult, error) {
	var out *UploadResult
	err := tenant.OnSite(ctx, s.cfg.RootSiteID, func(ctx context.Context) error {
		if err := s.checkObject(ctx, ObjectUser, itemID); err != nil {
			return err
		}

		img, err := imagefile.Normalize(data, imagefile.Sniff(data))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrRemoteUpload, err)
		}

		dir := s.DefaultDir(ObjectUser)
		target := s.targetURL(dir, itemID, "avatar"+targetExt(img))

		if err := s.client.Upload(ctx, target, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIME); err != nil {
			return fmt.Errorf("%w: %s", ErrRemoteUpload, err)
		}

		m := &Meta{
			RemoteURL:     target,
			CropW:         s.cfg.AvatarFullWidth,
			CropH:         s.cfg.AvatarFullHeight,
			OriginalWidth: img.Width,
		}
		if err := s.store.Put(ctx, ObjectUser, itemID, MetaKey(dir), m); err != nil {
			return err
		}

		out = &UploadResult{URL: target, Warning: s.uploadWarning(img)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UploadCover stores a cover image for a user or group. Covers carry no
// crop rectangle; display cropping is fixed policy applied at resolve time.
func (s *Service) UploadCover(ctx context.Context, in UploadInput) (*UploadResult, error) {
	dir := CoverDir(in.Object)
	if dir == "" {
		return nil, ErrInvalidObject
	}

	var out *UploadResult
	err := tenant.OnSite(ctx, s.cfg.RootSiteID, func(ctx context.Context) error {
		if err := s.checkObject(ctx, in.Object, in.ItemID); err != nil {
			return err
		}

		img, err := imagefile.Normalize(in.Data, imagefile.TypeByName(in.FileName))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrRemoteUpload, err)
		}

		target := s.targetURL(dir, in.ItemID, "cover"+targetExt(img))

		if err := s.client.Upload(ctx, target, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIME); err != nil {
			return fmt.Errorf("%w: %s", ErrRemoteUpload, err)
		}

		m := &Meta{RemoteURL: target, OriginalWidth: img.Width}
		if err := s.store.Put(ctx, in.Object, in.ItemID, MetaKey(dir), m); err != nil {
			return err
		}

		out = &UploadResult{URL: target}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CropRect is a crop rectangle in original-image pixel space.
type CropRect struct {
	X int `json:"crop_x"`
	Y int `json:"crop_y"`
	W int `json:"crop_w"`
	H int `json:"crop_h"`
}

// CropAvatar overlays a new crop rectangle onto the stored metadata. No
// bytes move; the backend crops on-demand at resolve time.
func (s *Service) CropAvatar(ctx context.Context, kind ObjectKind, itemID int64, dir string, rect CropRect) error {
	if dir == "" {
		dir = s.DefaultDir(kind)
	}
	if dir == "" {
		return ErrMissingAsset
	}

	return tenant.OnSite(ctx, s.cfg.RootSiteID, func(ctx context.Context) error {
		err := s.store.UpdateCrop(ctx, kind, itemID, MetaKey(dir), rect.X, rect.Y, rect.W, rect.H)
		if errors.Is(err, ErrMetaNotFound) {
			return ErrMissingAsset
		}
		return err
	})
}

// DeleteAvatar removes the remote object, purges any edge-cache entry for
// its locally served URL, and clears the metadata — in that order, so a
// failed remote delete never loses the pointer to a still-existing object.
// Deleting when nothing is stored is a no-op.
func (s *Service) DeleteAvatar(ctx context.Context, kind ObjectKind, itemID int64, dir string) error {
	if dir == "" {
		dir = s.DefaultDir(kind)
	}
	if dir == "" {
		return nil
	}
	return s.deleteAsset(ctx, kind, itemID, MetaKey(dir))
}

// DeleteCover removes a stored cover image the same way DeleteAvatar does.
func (s *Service) DeleteCover(ctx context.Context, kind ObjectKind, itemID int64) error {
	dir := CoverDir(kind)
	if dir == "" {
		return nil
	}
	return s.deleteAsset(ctx, kind, itemID, MetaKey(dir))
}

func (s *Service) deleteAsset(ctx context.Context, kind ObjectKind, itemID int64, key string) error {
	return tenant.OnSite(ctx, s.cfg.RootSiteID, func(ctx context.Context) error {
		m, err := s.store.Get(ctx, kind, itemID, key)
		if errors.Is(err, ErrMetaNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		remote := stripQuery(m.RemoteURL)
		if err := s.client.Delete(ctx, remote); err != nil {
			log.Printf("delete: remote delete of %s failed: %v", remote, err)
			return fmt.Errorf("%w: %s", ErrRemoteDelete, err)
		}

		if err := s.purger.Purge(ctx, s.localURL(remote)); err != nil {
			// The object is gone; a stale cache entry expires on its own.
			log.Printf("delete: cache purge failed: %v", err)
		}

		return s.store.Delete(ctx, kind, itemID, key)
	})
}

// checkObject rejects operations against ids that no longer resolve to a
// real entity, so failed lookups never leave orphaned remote objects.
func (s *Service) checkObject(ctx context.Context, kind ObjectKind, itemID int64) error {
	var (
		exists bool
		err    error
	)
	switch kind {
	case ObjectUser:
		exists, err = s.dir.UserExists(ctx, itemID)
	case ObjectGroup:
		exists, err = s.dir.GroupExists(ctx, itemID)
	default:
		// Blogs are not mirrored into the directory; trust the caller.
		return nil
	}
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s %d", ErrInvalidObject, kind, itemID)
	}
	return nil
}

// targetURL builds the deterministic remote path for an asset. Derived
// from ids, never from upload filenames, so re-uploads keep a stable URL.
func (s *Service) targetURL(dir string, itemID int64, name string) string {
	site := s.cfg.RootSiteID
	return fmt.Sprintf("%s/sites/%d/%s/%d/%s", s.client.BaseURL(), site, dir, itemID, name)
}

// localURL maps a remote object URL to the URL it is served from behind
// the platform's own domain, which is what edge caches key on.
func (s *Service) localURL(remoteURL string) string {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return remoteURL
	}
	return strings.TrimRight(s.cfg.SiteBaseURL, "/") + u.Path
}

func (s *Service) uploadWarning(img *imagefile.Image) string {
	if img.Unsupported {
		return "file type is not supported for display transforms and was stored unconverted"
	}
	if img.Width < s.cfg.AvatarFullWidth || img.Height < s.cfg.AvatarFullHeight {
		return fmt.Sprintf("you have selected an image that is smaller than recommended; for best results upload a picture larger than %d x %d pixels",
			s.cfg.AvatarFullWidth, s.cfg.AvatarFullHeight)
	}
	return ""
}

func targetExt(img *imagefile.Image) string {
	if img.Unsupported {
		// Keep whatever the payload is; serve as-is.
		return ""
	}
	return imagefile.CanonicalExt
}

func stripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
