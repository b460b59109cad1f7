package supabase_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imageforge-backend/internal/supabase"
)

func TestImagePath(t *testing.T) {
	userID := uuid.New()
	attemptID := uuid.New()

	path := supabase.ImagePath(userID, attemptID, ".png")
	assert.Equal(t, "users/"+userID.String()+"/images/"+attemptID.String()+".png", path)
}

func TestNewStorageClient_RequiresBucket(t *testing.T) {
	_, err := supabase.NewStorageClient("https://project.supabase.co", "key", "")
	assert.Error(t, err)
}

func TestStorageClient_GetPublicURL(t *testing.T) {
	client, err := supabase.NewStorageClient("https://project.supabase.co/", "key", "generated-images")
	require.NoError(t, err)

	assert.Equal(t,
		"https://project.supabase.co/storage/v1/object/public/generated-images/users/u/images/a.png",
		client.GetPublicURL("users/u/images/a.png"))
}

func TestStorageClient_MirrorImage(t *testing.T) {
	var mu sync.Mutex
	var uploadedPath, uploadedBody, uploadedType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/provider/fox.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/storage/v1/object/generated-images/"):
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			uploadedPath = strings.TrimPrefix(r.URL.Path, "/storage/v1/object/generated-images/")
			uploadedBody = string(body)
			uploadedType = r.Header.Get("Content-Type")
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Key":"generated-images/` + uploadedPath + `"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := supabase.NewStorageClient(srv.URL, "service-key", "generated-images")
	require.NoError(t, err)

	userID, attemptID := uuid.New(), uuid.New()
	publicURL, err := client.MirrorImage(context.Background(), userID, attemptID, srv.URL+"/provider/fox.png")
	require.NoError(t, err)

	expectedPath := supabase.ImagePath(userID, attemptID, ".png")
	assert.Equal(t, srv.URL+"/storage/v1/object/public/generated-images/"+expectedPath, publicURL)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, expectedPath, uploadedPath)
	assert.Equal(t, "png-bytes", uploadedBody)
	assert.Equal(t, "image/png", uploadedType)
}

func TestStorageClient_MirrorImage_DownloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := supabase.NewStorageClient(srv.URL, "service-key", "generated-images")
	require.NoError(t, err)

	_, err = client.MirrorImage(context.Background(), uuid.New(), uuid.New(), srv.URL+"/expired.png")
	assert.ErrorContains(t, err, "status 403")
}

func TestStorageClient_MirrorImage_TooLarge(t *testing.T) {
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/declared.png":
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Length", strconv.Itoa(40<<20))
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/streamed.png":
			w.Header().Set("Content-Type", "image/png")
			chunk := bytes.Repeat([]byte{0x89}, 1<<20)
			for i := 0; i < 33; i++ {
				if _, err := w.Write(chunk); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			}
		case r.Method == http.MethodPost:
			uploads.Add(1)
			_, _ = w.Write([]byte(`{"Key":"x"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := supabase.NewStorageClient(srv.URL, "service-key", "generated-images")
	require.NoError(t, err)

	_, err = client.MirrorImage(context.Background(), uuid.New(), uuid.New(), srv.URL+"/declared.png")
	assert.ErrorContains(t, err, "image too large")

	_, err = client.MirrorImage(context.Background(), uuid.New(), uuid.New(), srv.URL+"/streamed.png")
	assert.ErrorContains(t, err, "image too large")

	assert.Equal(t, int32(0), uploads.Load())
}

func TestStorageClient_RemoveImage(t *testing.T) {
	var mu sync.Mutex
	var removed []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/storage/v1/object/generated-images" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Prefixes []string `json:"prefixes"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		removed = append(removed, body.Prefixes...)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := supabase.NewStorageClient(srv.URL, "service-key", "generated-images")
	require.NoError(t, err)

	path := supabase.ImagePath(uuid.New(), uuid.New(), ".png")
	require.NoError(t, client.RemoveImage(context.Background(), client.GetPublicURL(path)))

	err = client.RemoveImage(context.Background(), "https://provider.example/fox.png")
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{path}, removed)
}
