package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".autonomeal")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.LoadCredentials()
	assert.ErrorIs(t, err, sdk.ErrNoCredentials)

	creds := &sdk.Credentials{
		ServerURL: "http://localhost:5000",
		Cookies: []sdk.Cookie{{
			Name:     "session",
			Value:    "signed-value",
			Path:     "/",
			Expires:  time.Now().Add(time.Hour).UTC().Truncate(time.Second),
			HttpOnly: true,
		}},
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveCredentials(creds))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, creds.ServerURL, loaded.ServerURL)
	assert.True(t, creds.SavedAt.Equal(loaded.SavedAt))
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "signed-value", loaded.Cookies[0].Value)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStoreSaveReplacesWholeRecord(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveCredentials(&sdk.Credentials{
		ServerURL: "http://a",
		Cookies:   []sdk.Cookie{{Name: "session", Value: "one"}, {Name: "extra", Value: "x"}},
	}))
	require.NoError(t, store.SaveCredentials(&sdk.Credentials{
		ServerURL: "http://b",
		Cookies:   []sdk.Cookie{{Name: "session", Value: "two"}},
	}))

	loaded, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "http://b", loaded.ServerURL)
	assert.Equal(t, []sdk.Cookie{{Name: "session", Value: "two"}}, loaded.Cookies)
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.DeleteCredentials(), "deleting nothing is fine")
	require.NoError(t, store.SaveCredentials(&sdk.Credentials{ServerURL: "http://a"}))
	require.NoError(t, store.DeleteCredentials())

	_, err = store.LoadCredentials()
	assert.ErrorIs(t, err, sdk.ErrNoCredentials)
}

func TestFileStoreCorruptFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	_, err = store.LoadCredentials()
	require.Error(t, err)
	assert.NotErrorIs(t, err, sdk.ErrNoCredentials)
}
