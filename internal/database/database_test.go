package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsingest/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(id string) models.MessageRecord {
	return models.MessageRecord{
		ID:          id,
		Timestamp:   "2024-06-01T14:30:05",
		SenderPhone: "15551234567",
		Content:     "hello there",
		Type:        "text",
		ExtractedAt: "2024-06-01T14:31:00",
	}
}

func TestNewRejectsInvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestSaveAndGetMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.SaveMessage(ctx, sampleRecord("SM1"), "")
	require.NoError(t, err)
	assert.True(t, inserted)

	rec, err := store.GetMessage(ctx, "SM1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "SM1", rec.ID)
	assert.Equal(t, "15551234567", rec.SenderPhone)
	assert.Equal(t, "hello there", rec.Content)
	assert.Equal(t, "text", rec.Type)
}

func TestSaveMessageIgnoresDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.SaveMessage(ctx, sampleRecord("SM1"), "")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.SaveMessage(ctx, sampleRecord("SM1"), "")
	require.NoError(t, err)
	assert.False(t, inserted, "re-saving the same message id must be a no-op")

	count, err := store.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHasMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveMessage(ctx, sampleRecord("SM1"), "")
	require.NoError(t, err)

	has, err := store.HasMessage(ctx, "SM1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasMessage(ctx, "SM2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetMessageNotFound(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.GetMessage(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateMediaPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("SM1")
	rec.Type = "image"
	rec.MediaURL = "https://api.twilio.com/media/ME1.jpg"
	rec.MediaFilename = "whatsapp_image_20240601_143005_ab12cd34.jpg"
	rec.MediaSize = 20480

	_, err := store.SaveMessage(ctx, rec, "")
	require.NoError(t, err)

	err = store.UpdateMediaPath(ctx, "SM1", "/data/media/whatsapp_image_20240601_143005_ab12cd34.jpg")
	require.NoError(t, err)

	got, err := store.GetMessage(ctx, "SM1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.MediaURL, got.MediaURL)
	assert.Equal(t, rec.MediaFilename, got.MediaFilename)
	assert.Equal(t, int64(20480), got.MediaSize)
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	t.Setenv("WHATSINGEST_ENABLE_ENCRYPTION", "true")
	t.Setenv("WHATSINGEST_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.SaveMessage(ctx, sampleRecord("SM1"), "")
	require.NoError(t, err)
	assert.True(t, inserted)

	// Deterministic lookup encryption keeps dedup working.
	inserted, err = store.SaveMessage(ctx, sampleRecord("SM1"), "")
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := store.GetMessage(ctx, "SM1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "15551234567", rec.SenderPhone)
	assert.Equal(t, "hello there", rec.Content)
}

func TestEncryptorRequiresSecret(t *testing.T) {
	t.Setenv("WHATSINGEST_ENABLE_ENCRYPTION", "true")
	t.Setenv("WHATSINGEST_ENCRYPTION_SECRET", "")

	_, err := NewEncryptor()
	assert.Error(t, err)
}

func TestEncryptorRejectsShortSecret(t *testing.T) {
	t.Setenv("WHATSINGEST_ENABLE_ENCRYPTION", "true")
	t.Setenv("WHATSINGEST_ENCRYPTION_SECRET", "too-short")

	_, err := NewEncryptor()
	assert.Error(t, err)
}

func TestEncryptorRandomizedVsLookup(t *testing.T) {
	t.Setenv("WHATSINGEST_ENABLE_ENCRYPTION", "true")
	t.Setenv("WHATSINGEST_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	enc, err := NewEncryptor()
	require.NoError(t, err)

	a, err := enc.Encrypt("15551234567")
	require.NoError(t, err)
	b, err := enc.Encrypt("15551234567")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "content encryption must use fresh nonces")

	la, err := enc.EncryptForLookup("SM1")
	require.NoError(t, err)
	lb, err := enc.EncryptForLookup("SM1")
	require.NoError(t, err)
	assert.Equal(t, la, lb, "lookup encryption must be deterministic")

	plain, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "15551234567", plain)
}

func TestEncryptorDisabledPassthrough(t *testing.T) {
	enc, err := NewEncryptor()
	require.NoError(t, err)

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}
