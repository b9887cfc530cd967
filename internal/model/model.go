package model

import "time"

// Model is a whisper.cpp model file present in the models directory.
type Model struct {
	ModifiedAt time.Time `json:"modified_at"`
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
}
