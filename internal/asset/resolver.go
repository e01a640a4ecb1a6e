package asset

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/gatherly/files/internal/config"
	"github.com/gatherly/files/internal/directory"
)

// ResolveParams describes one avatar URL request.
type ResolveParams struct {
	Object ObjectKind
	ItemID int64
	Width  int
	Height int
	// Scheme is "http" or "https"; empty defaults to https.
	Scheme string
	// Email seeds the fallback hash; when empty it is looked up for users
	// and synthesized for groups and blogs.
	Email        string
	ForceDefault bool
	Rating       string
}

// Resolver builds display URLs for avatars and covers. It is read-only and
// never fails: absent or unreadable metadata degrades to the hash-based
// fallback avatar.
type Resolver struct {
	store MetaStore
	dir   directory.Lookup
	cfg   *config.Config
}

// NewResolver creates a Resolver.
func NewResolver(store MetaStore, dir directory.Lookup, cfg *config.Config) *Resolver {
	return &Resolver{store: store, dir: dir, cfg: cfg}
}

// AvatarURL returns the display URL for an object's avatar: the stored
// original plus a transformation query string when an upload exists, or a
// deterministic fallback when none does.
func (r *Resolver) AvatarURL(ctx context.Context, p ResolveParams) string {
	key := MetaKey(DefaultAvatarDir(p.Object))

	m, err := r.store.Get(ctx, p.Object, p.ItemID, key)
	if err != nil {
		if !errors.Is(err, ErrMetaNotFound) {
			log.Printf("resolve: meta lookup for %s %d: %v", p.Object, p.ItemID, err)
		}
		return r.fallbackURL(ctx, p)
	}

	u, err := url.Parse(m.RemoteURL)
	if err != nil {
		log.Printf("resolve: bad stored URL for %s %d: %v", p.Object, p.ItemID, err)
		return r.fallbackURL(ctx, p)
	}

	q := u.Query()
	q.Set("crop", fmt.Sprintf("%dpx,%dpx,%dpx,%dpx", m.CropX, m.CropY, m.CropW, m.CropH))
	q.Set("resize", fmt.Sprintf("%d,%d", p.Width, p.Height))
	// Strips embedded EXIF/IPTC data from the served variant.
	q.Set("strip", "info")

	// Clamp the width only when the original was captured under a known,
	// narrower display and was uploaded oversized.
	if m.UIWidth > 0 && m.OriginalWidth > r.cfg.AvatarOriginalMaxWidth {
		q.Set("w", strconv.Itoa(m.UIWidth))
	}

	u.RawQuery = q.Encode()
	return setScheme(u.String(), p.Scheme)
}

// CoverURL returns the display URL for a cover image, or ErrMetaNotFound
// when this service holds no cover for the object and the caller should
// fall back to its default rendering.
func (r *Resolver) CoverURL(ctx context.Context, objectDir string, itemID int64, scheme string) (string, error) {
	var kind ObjectKind
	switch objectDir {
	case "members":
		kind = ObjectUser
	case "groups":
		kind = ObjectGroup
	default:
		return "", ErrMetaNotFound
	}

	m, err := r.store.Get(ctx, kind, itemID, MetaKey(CoverDir(kind)))
	if err != nil {
		return "", err
	}

	u, err := url.Parse(m.RemoteURL)
	if err != nil {
		return "", fmt.Errorf("bad stored cover URL: %w", err)
	}

	q := u.Query()
	q.Set("w", strconv.Itoa(r.cfg.CoverWidth))
	// Fit the width, crop the middle band of the image.
	q.Set("crop", fmt.Sprintf("0,25,%dpx,%dpx", r.cfg.CoverWidth, r.cfg.CoverHeight))
	q.Set("strip", "info")

	u.RawQuery = q.Encode()
	return setScheme(u.String(), scheme), nil
}

// fallbackURL builds the gravatar-compatible default avatar URL from a
// collision-resistant hash of the effective email address.
func (r *Resolver) fallbackURL(ctx context.Context, p ResolveParams) string {
	email := p.Email
	if email == "" {
		switch p.Object {
		case ObjectUser:
			if addr, err := r.dir.UserEmail(ctx, p.ItemID); err == nil {
				email = addr
			}
		}
		if email == "" {
			email = fmt.Sprintf("%d-%s@%s", p.ItemID, p.Object, r.cfg.RootDomain)
		}
	}

	sum := md5.Sum([]byte(strings.ToLower(email)))
	raw := "//" + r.cfg.GravatarBase + hex.EncodeToString(sum[:])

	q := url.Values{}
	q.Set("s", strconv.Itoa(p.Width))
	if p.ForceDefault {
		q.Set("f", "y")
	}
	if p.Rating != "" {
		q.Set("r", strings.ToLower(p.Rating))
	}
	if style := r.defaultStyle(p.Object); style != "gravatar_default" {
		q.Set("d", style)
	}

	return setScheme(raw+"?"+q.Encode(), p.Scheme)
}

func (r *Resolver) defaultStyle(kind ObjectKind) string {
	switch kind {
	case ObjectGroup:
		return r.cfg.GravatarDefaultGroup
	case ObjectBlog:
		return r.cfg.GravatarDefaultBlog
	default:
		return r.cfg.GravatarDefaultUser
	}
}

// setScheme forces the requested URL scheme onto raw.
func setScheme(raw, scheme string) string {
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	switch {
	case strings.HasPrefix(raw, "//"):
		return scheme + ":" + raw
	case strings.HasPrefix(raw, "http://"):
		return scheme + strings.TrimPrefix(raw, "http")
	case strings.HasPrefix(raw, "https://"):
		return scheme + ":" + strings.TrimPrefix(raw, "https:")
	default:
		return raw
	}
}
