package models

import "time"

// ArtifactKind identifies the type of a produced artifact.
type ArtifactKind string

const (
	ArtifactTable ArtifactKind = "table"
	ArtifactChart ArtifactKind = "chart"
	ArtifactLog   ArtifactKind = "log"
	ArtifactSQL   ArtifactKind = "sql"
)

// Artifact is a single output produced by an analysis run.
type Artifact struct {
	ID        string         `json:"id"`
	Kind      ArtifactKind   `json:"kind"`
	Title     string         `json:"title"`
	Content   map[string]any `json:"content,omitempty"`
	FilePath  string         `json:"file_path,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
