package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

// maxImageBytes bounds how much of a provider image is copied.
const maxImageBytes = 32 << 20

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type StorageClient struct {
	// storage-go keeps per-upload headers on a shared transport, so uploads
	// are serialized.
	mu         sync.Mutex
	client     *storage.Client
	bucket     string
	baseURL    string
	httpClient *http.Client
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) (*StorageClient, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:     client,
		bucket:     bucket,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ImagePath is the object key for a generated image:
// users/{user_id}/images/{attempt_id}{ext}.
func ImagePath(userID, attemptID uuid.UUID, ext string) string {
	return fmt.Sprintf("users/%s/images/%s%s", userID.String(), attemptID.String(), ext)
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath)
}

// MirrorImage copies a provider-hosted image into the bucket and returns its
// public URL. Provider URLs expire, bucket URLs do not.
func (s *StorageClient) MirrorImage(ctx context.Context, userID, attemptID uuid.UUID, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxImageBytes {
		return "", fmt.Errorf("image too large: %d bytes", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image too large: more than %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || !strings.HasPrefix(mediaType, "image/") {
		contentType = "image/png"
	}
	ext, ok := imageExtensions[strings.SplitN(contentType, ";", 2)[0]]
	if !ok {
		ext = ".png"
	}

	storagePath := ImagePath(userID, attemptID, ext)
	upsert := true
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return s.GetPublicURL(storagePath), nil
}

// RemoveImage deletes an object previously returned by MirrorImage. URLs
// outside this bucket are rejected.
func (s *StorageClient) RemoveImage(_ context.Context, publicURL string) error {
	prefix := s.GetPublicURL("")
	storagePath, ok := strings.CutPrefix(publicURL, prefix)
	if !ok || storagePath == "" {
		return fmt.Errorf("not an object in bucket %s: %s", s.bucket, publicURL)
	}
	if err := s.DeleteFile(storagePath); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func (s *StorageClient) DeleteFile(storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.client.RemoveFile(s.bucket, []string{storagePath})
	return err
}
