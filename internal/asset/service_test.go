package asset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/files/internal/imagefile"
)

const testBase = "https://files.gatherly.test/uploads"

func newTestService(store *fakeStore, client *fakeClient, purger *fakePurger, dir *fakeDirectory) *Service {
	if client.base == "" {
		client.base = testBase
	}
	return NewService(store, client, purger, dir, testConfig())
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)), imaging.JPEG))
	return buf.Bytes()
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)), imaging.PNG))
	return buf.Bytes()
}

func TestUploadAvatar_RoundTrip(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	dir := &fakeDirectory{users: map[int64]string{42: "user@example.com"}}
	svc := newTestService(store, client, &fakePurger{}, dir)

	result, err := svc.UploadAvatar(context.Background(), UploadInput{
		Object:   ObjectUser,
		ItemID:   42,
		FileName: "me.jpg",
		Data:     makeJPEG(t, 600, 400),
		UIWidth:  320,
	})
	require.NoError(t, err)

	wantURL := testBase + "/sites/1/avatars/42/avatar.png"
	assert.Equal(t, wantURL, result.URL)

	require.Len(t, client.uploads, 1)
	assert.Equal(t, wantURL, client.uploads[0].URL)
	assert.Equal(t, imagefile.CanonicalMIME, client.uploads[0].ContentType)

	m, err := store.Get(context.Background(), ObjectUser, 42, MetaKey("avatars"))
	require.NoError(t, err)
	assert.Equal(t, wantURL, m.RemoteURL)
	assert.Equal(t, 0, m.CropX)
	assert.Equal(t, 0, m.CropY)
	assert.Equal(t, 600, m.CropW)
	assert.Equal(t, 400, m.CropH)
	assert.Equal(t, 320, m.UIWidth)
	assert.Equal(t, 600, m.OriginalWidth)

	// Resolving now reflects the stored asset.
	resolver := NewResolver(store, dir, testConfig())
	got := resolver.AvatarURL(context.Background(), ResolveParams{
		Object: ObjectUser, ItemID: 42, Width: 150, Height: 150,
	})
	assert.Contains(t, got, "/sites/1/avatars/42/avatar.png")
}

func TestUploadAvatar_StableURLAcrossReuploads(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	dir := &fakeDirectory{users: map[int64]string{42: "user@example.com"}}
	svc := newTestService(store, client, &fakePurger{}, dir)

	first, err := svc.UploadAvatar(context.Background(), UploadInput{
		Object: ObjectUser, ItemID: 42, FileName: "a.jpg", Data: makeJPEG(t, 600, 400),
	})
	require.NoError(t, err)

	second, err := svc.UploadAvatar(context.Background(), UploadInput{
		Object: ObjectUser, ItemID: 42, FileName: "totally-different-name.png", Data: makePNG(t, 500, 500),
	})
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
}

func TestUploadAvatar_FailureLeavesExistingMetaUntouched(t *testing.T) {
	store := newFakeStore()
	prior := Meta{
		RemoteURL: testBase + "/sites/1/avatars/42/avatar.png",
		CropX:     10, CropY: 20, CropW: 300, CropH: 300,
		UIWidth: 320, OriginalWidth: 600,
	}
	store.records[storeKey(ObjectUser, 42, MetaKey("avatars"))] = prior

	client := &fakeClient{uploadErr: errors.New("boom")}
	dir := &fakeDirectory{users: map[int64]string{42: "user@example.com"}}
	svc := newTestService(store, client, &fakePurger{}, dir)

	_, err := svc.UploadAvatar(context.Background(), UploadInput{
		Object: ObjectUser, ItemID: 42, FileName: "new.jpg", Data: makeJPEG(t, 800, 800),
	})
	assert.ErrorIs(t, err, ErrRemoteUpload)

	m, err := store.Get(context.Background(), ObjectUser, 42, MetaKey("avatars"))
	require.NoError(t, err)
	assert.Equal(t, prior, *m)
}

func TestUploadAvatar_InvalidObjectAbortsBeforeUpload(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	svc := newTestService(store, client, &fakePurger{}, &fakeDirectory{users: map[int64]string{}})

	_, err := svc.UploadAvatar(context.Background(), UploadInput{
		Object: ObjectUser, ItemID: 99, FileName: "x.jpg", Data: makeJPEG(t, 200, 200),
	})
	assert.ErrorIs(t, err, ErrInvalidObject)
	assert.Empty(t, client.uploads, "no remote object must be created for an invalid id")
	assert.Empty(t, store.records)
}

func TestUploadAvatar_SmallImageWarns(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{users: map[int64]string{42: "user@example.com"}}
	svc := newTestService(store, &fakeClient{}, &fakePurger{}, dir)

	result, err := svc.UploadAvatar(context.Background(), UploadInput{
		Object: ObjectUser, ItemID: 42, FileName: "tiny.jpg", Data: makeJPEG(t, 80, 80),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
}

func TestCaptureAvatar_DefaultsToFullFrameCrop(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{users: map[int64]string{42: "user@example.com"}}
	svc := newTestService(store, &fakeClient{}, &fakePurger{}, dir)

	_, err := svc.CaptureAvatar(context.Background(), 42, makePNG(t, 640, 480))
	require.NoError(t, err)

	m, err := store.Get(context.Background(), ObjectUser, 42, MetaKey("avatars"))
	require.NoError(t, err)
	assert.Equal(t, 150, m.CropW)
	assert.Equal(t, 150, m.CropH)
	assert.Equal(t, 0, m.UIWidth)
	assert.Equal(t, 640, m.OriginalWidth)
}

func TestCropAvatar_OverlaysOnlyCropFields(t *testing.T) {
	store := newFakeStore()
	store.records[storeKey(ObjectUser, 42, MetaKey("avatars"))] = Meta{
		RemoteURL: testBase + "/sites/1/avatars/42/avatar.png",
		CropW:     600, CropH: 400, UIWidth: 320, OriginalWidth: 600,
	}
	svc := newTestService(store, &fakeClient{}, &fakePurger{}, &fakeDirectory{})

	rect := CropRect{X: 10, Y: 20, W: 300, H: 300}
	require.NoError(t, svc.CropAvatar(context.Background(), ObjectUser, 42, "", rect))

	m, err := store.Get(context.Background(), ObjectUser, 42, MetaKey("avatars"))
	require.NoError(t, err)
	assert.Equal(t, 10, m.CropX)
	assert.Equal(t, 300, m.CropW)
	assert.Equal(t, testBase+"/sites/1/avatars/42/avatar.png", m.RemoteURL)
	assert.Equal(t, 320, m.UIWidth)
	assert.Equal(t, 600, m.OriginalWidth)

	// Applying the same rectangle again changes nothing.
	before := *m
	require.NoError(t, svc.CropAvatar(context.Background(), ObjectUser, 42, "", rect))
	after, err := store.Get(context.Background(), ObjectUser, 42, MetaKey("avatars"))
	require.NoError(t, err)
	assert.Equal(t, before, *after)
}

func TestCropAvatar_WithoutUploadFails(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeClient{}, &fakePurger{}, &fakeDirectory{})

	err := svc.CropAvatar(context.Background(), ObjectUser, 99, "", CropRect{W: 100, H: 100})
	assert.ErrorIs(t, err, ErrMissingAsset)
	assert.Empty(t, store.records)
}

func TestDeleteAvatar_RemovesRemotePurgesAndClears(t *testing.T) {
	store := newFakeStore()
	store.records[storeKey(ObjectGroup, 7, MetaKey("group-avatars"))] = Meta{
		RemoteURL: testBase + "/sites/1/group-avatars/7/avatar.png",
		CropW:     400, CropH: 400,
	}
	client := &fakeClient{}
	purger := &fakePurger{}
	dir := &fakeDirectory{groups: map[int64]bool{7: true}}
	svc := newTestService(store, client, purger, dir)

	require.NoError(t, svc.DeleteAvatar(context.Background(), ObjectGroup, 7, ""))

	require.Len(t, client.deletes, 1)
	assert.Equal(t, testBase+"/sites/1/group-avatars/7/avatar.png", client.deletes[0])
	require.Len(t, purger.purged, 1)
	assert.Equal(t, "https://gatherly.test/uploads/sites/1/group-avatars/7/avatar.png", purger.purged[0])
	assert.Empty(t, store.records)

	// Resolving now falls back to the hashed default, not a stale URL.
	resolver := NewResolver(store, dir, testConfig())
	got := resolver.AvatarURL(context.Background(), ResolveParams{
		Object: ObjectGroup, ItemID: 7, Width: 150, Height: 150,
	})
	assert.Contains(t, got, "www.gravatar.com/avatar/533bbbc4691c4ef23fcb8d511fc23423")
}

func TestDeleteAvatar_RemoteFailurePreservesState(t *testing.T) {
	store := newFakeStore()
	prior := Meta{
		RemoteURL: testBase + "/sites/1/group-avatars/7/avatar.png",
		CropW:     400, CropH: 400,
	}
	store.records[storeKey(ObjectGroup, 7, MetaKey("group-avatars"))] = prior

	client := &fakeClient{deleteErr: errors.New("status 500")}
	purger := &fakePurger{}
	svc := newTestService(store, client, purger, &fakeDirectory{})

	err := svc.DeleteAvatar(context.Background(), ObjectGroup, 7, "")
	assert.ErrorIs(t, err, ErrRemoteDelete)

	m, gerr := store.Get(context.Background(), ObjectGroup, 7, MetaKey("group-avatars"))
	require.NoError(t, gerr)
	assert.Equal(t, prior, *m)
	assert.Empty(t, purger.purged, "no purge on a failed remote delete")
}

func TestDeleteAvatar_NoRecordIsANoOp(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	svc := newTestService(store, client, &fakePurger{}, &fakeDirectory{})

	require.NoError(t, svc.DeleteAvatar(context.Background(), ObjectUser, 42, ""))
	require.NoError(t, svc.DeleteAvatar(context.Background(), ObjectUser, 42, ""))
	assert.Empty(t, client.deletes)
}

func TestDeleteAvatar_NoResolvableDirIsANoOp(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	svc := newTestService(store, client, &fakePurger{}, &fakeDirectory{})
	svc.DefaultDir = func(ObjectKind) string { return "" }

	require.NoError(t, svc.DeleteAvatar(context.Background(), ObjectUser, 42, ""))
	assert.Empty(t, client.deletes)
}

func TestUploadCover_StoresURLOnlyMeta(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	dir := &fakeDirectory{users: map[int64]string{5: "user@example.com"}}
	svc := newTestService(store, client, &fakePurger{}, dir)

	result, err := svc.UploadCover(context.Background(), UploadInput{
		Object: ObjectUser, ItemID: 5, FileName: "cover.jpg", Data: makeJPEG(t, 1600, 500),
	})
	require.NoError(t, err)
	assert.Equal(t, testBase+"/sites/1/user-cover/5/cover.png", result.URL)

	m, err := store.Get(context.Background(), ObjectUser, 5, MetaKey(CoverDir(ObjectUser)))
	require.NoError(t, err)
	assert.Equal(t, result.URL, m.RemoteURL)
	assert.Equal(t, 0, m.CropW)
}

func TestDeleteCover_RoundTrip(t *testing.T) {
	store := newFakeStore()
	store.records[storeKey(ObjectGroup, 7, MetaKey(CoverDir(ObjectGroup)))] = Meta{
		RemoteURL: testBase + "/sites/1/group-cover/7/cover.png",
	}
	client := &fakeClient{}
	svc := newTestService(store, client, &fakePurger{}, &fakeDirectory{})

	require.NoError(t, svc.DeleteCover(context.Background(), ObjectGroup, 7))
	assert.Len(t, client.deletes, 1)
	assert.Empty(t, store.records)
}
