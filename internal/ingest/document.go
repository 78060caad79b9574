package ingest

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BuildDocument wraps cleansed rows with the file's base name and the
// ingestion time. Data is never nil so an empty table stores as [].
func BuildDocument(path string, rows []Row, now time.Time) Document {
	if rows == nil {
		rows = []Row{}
	}
	return Document{
		ID:         uuid.New(),
		FileName:   filepath.Base(path),
		IngestedAt: now.UTC(),
		Data:       rows,
	}
}
