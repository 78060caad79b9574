package ingest

import (
	"time"

	"github.com/google/uuid"
)

// RequiredColumns lists the columns every export must carry, in output order.
var RequiredColumns = []string{
	"timestamp", "longitude", "latitude", "operator", "networkmode", "device",
	"arfcn", "level", "qual", "dl_bitrate", "ul_bitrate",
}

// Op identifies what kind of filesystem notification produced an event.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpScan   Op = "scan" // synthesized by a directory scan
)

// FileEvent is one notification about a path in the staging directory.
type FileEvent struct {
	Path  string
	Op    Op
	IsDir bool
	At    time.Time
}

// Measurement is one decoded line of an export. Level and Qual stay raw
// because malformed values are coerced during cleansing instead of failing
// the file. Coordinates must be numeric; a line without them is skipped.
type Measurement struct {
	Timestamp   string  `csv:"timestamp"`
	Longitude   float64 `csv:"longitude"`
	Latitude    float64 `csv:"latitude"`
	Operator    string  `csv:"operator"`
	NetworkMode string  `csv:"networkmode"`
	Device      string  `csv:"device"`
	ARFCN       Int     `csv:"arfcn"`
	Level       string  `csv:"level"`
	Qual        string  `csv:"qual"`
	DLBitrate   Float   `csv:"dl_bitrate"`
	ULBitrate   Float   `csv:"ul_bitrate"`

	Line int `csv:"-"` // 1-based line in the source file
}

// Row is a cleansed measurement as stored in a document.
type Row struct {
	Timestamp   time.Time `json:"timestamp"`
	Date        string    `json:"date"`
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	Operator    string    `json:"operator"`
	NetworkMode string    `json:"networkmode"`
	Device      string    `json:"device"`
	ARFCN       int       `json:"arfcn"`
	Level       int       `json:"level"`
	Qual        int       `json:"qual"`
	DLBitrate   float64   `json:"dl_bitrate"`
	ULBitrate   float64   `json:"ul_bitrate"`

	// OpName is the carrier name for Operator, null when the code is unknown.
	OpName *string `json:"opname"`

	// City is set by enrichment only.
	City string `json:"city,omitempty"`
}

// Document is the unit of persistence: one per ingested file.
type Document struct {
	ID         uuid.UUID `json:"_id"`
	FileName   string    `json:"file_name"`
	IngestedAt time.Time `json:"ingested_at"`
	Data       []Row     `json:"data"`
}

// Table is the parsed content of one export.
type Table struct {
	Rows     []Measurement
	Skipped  int    // malformed lines dropped while reading
	Checksum string // hex sha256 of the raw file bytes
}

// Stage is a step of the file lifecycle.
type Stage string

const (
	StageObserved   Stage = "observed"
	StageValidating Stage = "validating"
	StageParsing    Stage = "parsing"
	StageCleansing  Stage = "cleansing"
	StageCommitting Stage = "committing"
)

// Result is how a file left the pipeline.
type Result string

const (
	ResultArchived   Result = "archived"   // committed (or already committed) and moved to backup
	ResultDeleted    Result = "deleted"    // rejected or unparsable, removed from staging
	ResultRetained   Result = "retained"   // commit failed, left in staging
	ResultSetAside   Result = "set_aside"  // commit failed, moved to the failed directory
	ResultSkipped    Result = "skipped"    // vanished before processing
	ResultUnarchived Result = "unarchived" // committed but the backup move failed
)

// Outcome records one pipeline run for a file.
type Outcome struct {
	TaskID      uint64
	File        string // base name
	Path        string
	Stage       Stage // last stage reached
	Result      Result
	Rows        int
	Skipped     int
	DocumentID  string
	Checksum    string
	Committed   bool
	Destination string // backup or failed path, when moved
	Err         error
	Started     time.Time
	Finished    time.Time
}

// Duration returns how long the run took.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}
