// Package asset owns avatar and cover-image semantics: where an object's
// image lives on the file backend, how it is cropped for display, and the
// orchestration of upload, crop, and delete against the backend.
package asset

import (
	"errors"
	"fmt"
)

// ObjectKind is the entity an asset belongs to.
type ObjectKind string

const (
	ObjectUser  ObjectKind = "user"
	ObjectGroup ObjectKind = "group"
	ObjectBlog  ObjectKind = "blog"
)

// ParseObjectKind validates a kind supplied in a URL path.
func ParseObjectKind(s string) (ObjectKind, error) {
	switch ObjectKind(s) {
	case ObjectUser, ObjectGroup, ObjectBlog:
		return ObjectKind(s), nil
	default:
		return "", fmt.Errorf("unknown object kind %q", s)
	}
}

// metaKeyPrefix namespaces this service's rows in asset_meta.
const metaKeyPrefix = "gatherly"

// MetaKey builds the persisted key for an asset subdirectory,
// e.g. "gatherly-avatars" or "gatherly-group-avatars".
func MetaKey(dir string) string {
	return metaKeyPrefix + "-" + dir
}

// DefaultAvatarDir returns the conventional avatar subdirectory for an
// object kind.
func DefaultAvatarDir(kind ObjectKind) string {
	switch kind {
	case ObjectUser:
		return "avatars"
	case ObjectGroup:
		return "group-avatars"
	case ObjectBlog:
		return "blog-avatars"
	default:
		return ""
	}
}

// CoverDir returns the cover-image subdirectory for an object kind.
func CoverDir(kind ObjectKind) string {
	switch kind {
	case ObjectUser:
		return "user-cover"
	case ObjectGroup:
		return "group-cover"
	default:
		return ""
	}
}

// Meta records where an uploaded asset lives and how to crop it for
// display. A record exists iff an upload succeeded; display sizing is
// computed at resolve time and never stored.
type Meta struct {
	RemoteURL string `json:"remoteUrl"`
	CropX     int    `json:"cropX"`
	CropY     int    `json:"cropY"`
	CropW     int    `json:"cropW"`
	CropH     int    `json:"cropH"`
	// UIWidth is the width the cropping UI displayed the image at when it
	// was uploaded; 0 for non-interactive captures.
	UIWidth int `json:"uiWidth"`
	// OriginalWidth is the measured pixel width of the stored original.
	OriginalWidth int `json:"originalWidth"`
}

// ErrMetaNotFound is returned when no record exists for an object/key pair.
var ErrMetaNotFound = errors.New("asset metadata not found")

// Orchestrator failures, recovered at the handler boundary into
// user-visible notices.
var (
	ErrRemoteUpload  = errors.New("remote upload failed")
	ErrRemoteDelete  = errors.New("remote delete failed")
	ErrInvalidObject = errors.New("object does not exist")
	ErrMissingAsset  = errors.New("no asset uploaded for object")
)
