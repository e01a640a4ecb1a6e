// Package files talks to the file-hosting backend that stores asset bytes.
//
// Two backends implement the same narrow Client contract: the remote
// file-hosting service (FHS) used in production, and any S3-compatible
// store (MinIO locally). Everything above this package deals only in
// fully-qualified object URLs.
package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// clientTimeout bounds every call to the backend. A timeout is a failure,
// never a success.
const clientTimeout = 10 * time.Second

// Credential header names expected by the file-hosting service.
const (
	headerClientSiteID = "client-site-id"
	headerAccessToken  = "access-token"
)

// Client is the contract against the file-hosting backend.
type Client interface {
	// Upload stores body under the fully-qualified target URL.
	Upload(ctx context.Context, targetURL string, body io.Reader, size int64, contentType string) error
	// Delete removes the object at the fully-qualified target URL.
	Delete(ctx context.Context, targetURL string) error
	// BaseURL returns the hostname plus upload-path prefix under which
	// this backend stores objects.
	BaseURL() string
}

// StatusError reports a non-success HTTP status from the backend.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("files: %s returned status %d", e.Op, e.StatusCode)
}

// FHS is the Client for the remote file-hosting service. Requests carry
// two static credential tokens; the service derives display variants
// on-demand from query parameters, so only originals are ever stored.
type FHS struct {
	endpoint     string
	uploadPath   string
	clientSiteID string
	accessToken  string
	http         *http.Client
}

// NewFHS creates a file-hosting service client.
func NewFHS(endpoint, uploadPath, clientSiteID, accessToken string) *FHS {
	return &FHS{
		endpoint:     strings.TrimRight(endpoint, "/"),
		uploadPath:   strings.Trim(uploadPath, "/"),
		clientSiteID: clientSiteID,
		accessToken:  accessToken,
		http:         &http.Client{Timeout: clientTimeout},
	}
}

// BaseURL returns the service hostname joined with the upload path.
func (f *FHS) BaseURL() string {
	return f.endpoint + "/" + f.uploadPath
}

// Upload PUTs body to targetURL with the credential headers attached.
// Any transport error or non-2xx status is a failure.
func (f *FHS) Upload(ctx context.Context, targetURL string, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, targetURL, body)
	if err != nil {
		return fmt.Errorf("files: build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	f.setCredentials(req)

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("files: upload %s: %w", targetURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "upload", StatusCode: resp.StatusCode}
	}
	return nil
}

// Delete issues a DELETE for targetURL. The service answers 200 on
// success; anything else is a failure.
func (f *FHS) Delete(ctx context.Context, targetURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, targetURL, nil)
	if err != nil {
		return fmt.Errorf("files: build delete request: %w", err)
	}
	f.setCredentials(req)

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("files: delete %s: %w", targetURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "delete", StatusCode: resp.StatusCode}
	}
	return nil
}

func (f *FHS) setCredentials(req *http.Request) {
	req.Header.Set(headerClientSiteID, f.clientSiteID)
	req.Header.Set(headerAccessToken, f.accessToken)
}
