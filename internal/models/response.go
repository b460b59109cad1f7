package models

import "time"

type GenerateImageResponse struct {
	ImageURL string `json:"imageUrl"`
	ImageID  string `json:"imageId,omitempty"`
}

type ImageResponse struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

type ImageListResponse struct {
	Images []ImageResponse `json:"images"`
}

type CreditsResponse struct {
	Balance int `json:"balance"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}
