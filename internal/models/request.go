package models

type GenerateImageRequest struct {
	// Prompt describes the image to generate.
	Prompt string `json:"prompt" example:"a red fox in a snowy forest"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
