package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"imageforge-backend/internal/models"
)

// RealtimeClient sends broadcast messages through the Supabase Realtime
// REST endpoint. supabase-go has no Realtime support.
type RealtimeClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewRealtimeClient(supabaseURL, serviceRoleKey string) *RealtimeClient {
	return &RealtimeClient{
		endpoint: strings.TrimSuffix(supabaseURL, "/") + "/realtime/v1/api/broadcast",
		apiKey:   serviceRoleKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type broadcastMessage struct {
	Topic   string                 `json:"topic"`
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

func (r *RealtimeClient) PublishEvent(ctx context.Context, channel, event string, payload map[string]interface{}) error {
	body, err := json.Marshal(map[string][]broadcastMessage{
		"messages": {{Topic: channel, Event: event, Payload: payload}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("failed to broadcast: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (r *RealtimeClient) PublishUserEvent(ctx context.Context, userID uuid.UUID, event string, payload map[string]interface{}) error {
	channel := fmt.Sprintf("user:%s", userID.String())
	return r.PublishEvent(ctx, channel, event, payload)
}

// EventImageCreated is broadcast on the owner's channel after a record is
// stored.
const EventImageCreated = "image_created"

func (r *RealtimeClient) PublishImageCreated(ctx context.Context, image *models.GeneratedImage) error {
	return r.PublishUserEvent(ctx, image.UserID, EventImageCreated, map[string]interface{}{
		"id":         image.ID.String(),
		"prompt":     image.Prompt,
		"image_url":  image.ImageURL,
		"created_at": image.CreatedAt,
	})
}
