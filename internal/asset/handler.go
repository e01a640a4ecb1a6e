package asset

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatherly/files/internal/config"
	"github.com/gatherly/files/internal/response"
	"github.com/gatherly/files/internal/tenant"
)

// maxUploadBytes bounds in-memory buffering of multipart uploads.
const maxUploadBytes = 10 << 20

// Handler holds HTTP handlers for the avatar and cover endpoints.
type Handler struct {
	svc      *Service
	resolver *Resolver
	cfg      *config.Config
}

// NewHandler creates a new asset Handler.
func NewHandler(svc *Service, resolver *Resolver, cfg *config.Config) *Handler {
	return &Handler{svc: svc, resolver: resolver, cfg: cfg}
}

// urlPayload is the resolve response body.
type urlPayload struct {
	URL string `json:"url"`
}

// ResolveAvatar godoc
//
//	@Summary		Resolve an avatar display URL
//	@Description	Returns the transformation URL of the stored avatar, or the hash-based fallback when none is uploaded.
//	@Tags			avatars
//	@Produce		json
//	@Param			object			path	string	true	"Object kind"	Enums(user, group, blog)
//	@Param			id				path	int		true	"Object id"
//	@Param			w				query	int		false	"Display width"
//	@Param			h				query	int		false	"Display height"
//	@Param			scheme			query	string	false	"URL scheme"	Enums(http, https)
//	@Param			email			query	string	false	"Email for the fallback hash"
//	@Param			force_default	query	bool	false	"Force the fallback image"
//	@Param			rating			query	string	false	"Maximum fallback rating"
//	@Success		200	{object}	response.Envelope{data=urlPayload}
//	@Failure		400	{object}	response.Envelope
//	@Router			/avatars/{object}/{id}/url [get]
func (h *Handler) ResolveAvatar(w http.ResponseWriter, r *http.Request) {
	kind, itemID, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	p := ResolveParams{
		Object:       kind,
		ItemID:       itemID,
		Width:        intQuery(q.Get("w"), h.cfg.AvatarFullWidth),
		Height:       intQuery(q.Get("h"), h.cfg.AvatarFullHeight),
		Scheme:       q.Get("scheme"),
		Email:        q.Get("email"),
		ForceDefault: q.Get("force_default") == "true" || q.Get("force_default") == "1",
		Rating:       q.Get("rating"),
	}

	var avatarURL string
	_ = tenant.OnSite(r.Context(), h.cfg.RootSiteID, func(ctx context.Context) error {
		avatarURL = h.resolver.AvatarURL(ctx, p)
		return nil
	})

	response.OK(w, urlPayload{URL: avatarURL})
}

// ResolveCover godoc
//
//	@Summary		Resolve a cover-image display URL
//	@Description	Returns the transformation URL of the stored cover image. 404 "not handled" tells the caller to use its default rendering.
//	@Tags			covers
//	@Produce		json
//	@Param			objectDir	path	string	true	"Object directory"	Enums(members, groups)
//	@Param			id			path	int		true	"Object id"
//	@Param			scheme		query	string	false	"URL scheme"	Enums(http, https)
//	@Success		200	{object}	response.Envelope{data=urlPayload}
//	@Failure		404	{object}	response.Envelope
//	@Router			/covers/{objectDir}/{id}/url [get]
func (h *Handler) ResolveCover(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid object id")
		return
	}
	objectDir := chi.URLParam(r, "objectDir")

	var coverURL string
	err = tenant.OnSite(r.Context(), h.cfg.RootSiteID, func(ctx context.Context) error {
		var err error
		coverURL, err = h.resolver.CoverURL(ctx, objectDir, itemID, r.URL.Query().Get("scheme"))
		return err
	})
	if errors.Is(err, ErrMetaNotFound) {
		response.NotHandled(w)
		return
	}
	if err != nil {
		log.Printf("resolve cover: %v", err)
		response.InternalError(w)
		return
	}

	response.OK(w, urlPayload{URL: coverURL})
}

// UploadAvatar godoc
//
//	@Summary		Upload an avatar
//	@Description	Pushes the file to the file backend and records fresh crop metadata.
//	@Tags			avatars
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			object		path		string	true	"Object kind"	Enums(user, group, blog)
//	@Param			id			path		int		true	"Object id"
//	@Param			file		formData	file	true	"Image file"
//	@Param			ui_width	formData	int		false	"Cropping UI display width"
//	@Success		200	{object}	response.Envelope{data=UploadResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/avatars/{object}/{id} [post]
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	kind, itemID, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	in, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	in.Object = kind
	in.ItemID = itemID

	result, err := h.svc.UploadAvatar(r.Context(), *in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if result.Warning != "" {
		response.OKWithWarning(w, result, result.Warning)
		return
	}
	response.OK(w, result)
}

// CaptureAvatar godoc
//
//	@Summary		Store a webcam-captured avatar
//	@Description	Accepts base64 image bytes from a non-interactive capture; the crop defaults to the full display frame.
//	@Tags			avatars
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path	int				true	"User id"
//	@Param			body	body	captureRequest	true	"Base64 image payload"
//	@Success		200	{object}	response.Envelope{data=UploadResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/avatars/user/{id}/capture [post]
func (h *Handler) CaptureAvatar(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid object id")
		return
	}

	var req captureRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(data) == 0 {
		response.BadRequest(w, "invalid image payload")
		return
	}

	result, err := h.svc.CaptureAvatar(r.Context(), itemID, data)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if result.Warning != "" {
		response.OKWithWarning(w, result, result.Warning)
		return
	}
	response.OK(w, result)
}

type captureRequest struct {
	Image string `json:"image"`
}

// CropAvatar godoc
//
//	@Summary		Crop an avatar
//	@Description	Stores new crop coordinates; pixels are cropped on-demand at resolve time.
//	@Tags			avatars
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			object	path	string		true	"Object kind"	Enums(user, group, blog)
//	@Param			id		path	int			true	"Object id"
//	@Param			body	body	CropRect	true	"Crop rectangle"
//	@Success		200	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/avatars/{object}/{id}/crop [put]
func (h *Handler) CropAvatar(w http.ResponseWriter, r *http.Request) {
	kind, itemID, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	var rect CropRect
	if err := json.NewDecoder(r.Body).Decode(&rect); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if rect.W < 0 || rect.H < 0 || rect.X < 0 || rect.Y < 0 {
		response.BadRequest(w, "crop rectangle must be non-negative")
		return
	}

	if err := h.svc.CropAvatar(r.Context(), kind, itemID, r.URL.Query().Get("dir"), rect); err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.OK(w, nil)
}

// DeleteAvatar godoc
//
//	@Summary		Delete an avatar
//	@Description	Removes the remote object, purges the edge cache, and clears the crop metadata. Idempotent.
//	@Tags			avatars
//	@Produce		json
//	@Security		BearerAuth
//	@Param			object	path	string	true	"Object kind"	Enums(user, group, blog)
//	@Param			id		path	int		true	"Object id"
//	@Param			dir		query	string	false	"Avatar subdirectory override"
//	@Success		200	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/avatars/{object}/{id} [delete]
func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	kind, itemID, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteAvatar(r.Context(), kind, itemID, r.URL.Query().Get("dir")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.OK(w, nil)
}

// UploadCover godoc
//
//	@Summary		Upload a cover image
//	@Tags			covers
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			objectDir	path		string	true	"Object directory"	Enums(members, groups)
//	@Param			id			path		int		true	"Object id"
//	@Param			file		formData	file	true	"Image file"
//	@Success		200	{object}	response.Envelope{data=UploadResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/covers/{objectDir}/{id} [post]
func (h *Handler) UploadCover(w http.ResponseWriter, r *http.Request) {
	kind, itemID, ok := h.coverParams(w, r)
	if !ok {
		return
	}

	in, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	in.Object = kind
	in.ItemID = itemID

	result, err := h.svc.UploadCover(r.Context(), *in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.OK(w, result)
}

// DeleteCover godoc
//
//	@Summary		Delete a cover image
//	@Tags			covers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			objectDir	path	string	true	"Object directory"	Enums(members, groups)
//	@Param			id			path	int		true	"Object id"
//	@Success		200	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/covers/{objectDir}/{id} [delete]
func (h *Handler) DeleteCover(w http.ResponseWriter, r *http.Request) {
	kind, itemID, ok := h.coverParams(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteCover(r.Context(), kind, itemID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.OK(w, nil)
}

// coverParams parses the {objectDir} and {id} path params of cover routes.
func (h *Handler) coverParams(w http.ResponseWriter, r *http.Request) (ObjectKind, int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || itemID <= 0 {
		response.BadRequest(w, "invalid object id")
		return "", 0, false
	}
	switch chi.URLParam(r, "objectDir") {
	case "members":
		return ObjectUser, itemID, true
	case "groups":
		return ObjectGroup, itemID, true
	default:
		response.BadRequest(w, "unknown object directory")
		return "", 0, false
	}
}

// objectParams parses the {object} and {id} path params shared by most routes.
func (h *Handler) objectParams(w http.ResponseWriter, r *http.Request) (ObjectKind, int64, bool) {
	kind, err := ParseObjectKind(chi.URLParam(r, "object"))
	if err != nil {
		response.BadRequest(w, err.Error())
		return "", 0, false
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || itemID <= 0 {
		response.BadRequest(w, "invalid object id")
		return "", 0, false
	}
	return kind, itemID, true
}

// readUpload pulls the multipart file and optional ui_width out of the request.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*UploadInput, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing file field")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		response.BadRequest(w, "unreadable file")
		return nil, false
	}

	return &UploadInput{
		FileName: header.Filename,
		Data:     data,
		UIWidth:  intQuery(r.FormValue("ui_width"), 0),
	}, true
}

// writeServiceError maps orchestrator failures onto user-visible notices.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidObject):
		response.BadRequest(w, "object does not exist")
	case errors.Is(err, ErrMissingAsset):
		response.NotFound(w, "no asset uploaded for this object")
	case errors.Is(err, ErrRemoteUpload):
		response.BadGateway(w, "upload failed: the file service did not accept the file")
	case errors.Is(err, ErrRemoteDelete):
		response.BadGateway(w, "delete failed: the file service did not remove the file")
	default:
		log.Printf("asset: %v", err)
		response.InternalError(w)
	}
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
