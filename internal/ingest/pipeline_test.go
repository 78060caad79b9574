package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeStore struct {
	mu   sync.Mutex
	docs []Document
	err  error
}

func (s *fakeStore) Insert(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// dirArchiver moves files between real directories.
type dirArchiver struct {
	backup    string
	failed    string
	archiveOK bool
}

func (a *dirArchiver) Archive(path string) (string, error) {
	if !a.archiveOK {
		return "", errors.New("disk full")
	}
	dst := filepath.Join(a.backup, filepath.Base(path))
	return dst, os.Rename(path, dst)
}

func (a *dirArchiver) Discard(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (a *dirArchiver) SetAside(path string) (string, bool, error) {
	if a.failed == "" {
		return "", false, nil
	}
	dst := filepath.Join(a.failed, filepath.Base(path))
	return dst, true, os.Rename(path, dst)
}

type fakeJournal struct {
	mu       sync.Mutex
	outcomes []Outcome
	latest   map[string]Result
}

func (j *fakeJournal) Record(_ context.Context, o Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, o)
	if o.Committed {
		if j.latest == nil {
			j.latest = make(map[string]Result)
		}
		j.latest[o.File+"|"+o.Checksum] = o.Result
	}
	return nil
}

func (j *fakeJournal) Unarchived(_ context.Context, name, sum string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.latest[name+"|"+sum] == ResultUnarchived, nil
}

type fakeGeocoder struct {
	city string
	err  error
}

func (g fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return g.city, g.err
}

type env struct {
	staging string
	backup  string
	store   *fakeStore
	arch    *dirArchiver
	journal *fakeJournal
	opts    Options
	enrich  Enricher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		staging: filepath.Join(root, "temp"),
		backup:  filepath.Join(root, "storage"),
		store:   &fakeStore{},
		journal: &fakeJournal{},
		opts:    Options{WriteEmpty: true},
	}
	for _, d := range []string{e.staging, e.backup} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	e.arch = &dirArchiver{backup: e.backup, archiveOK: true}
	return e
}

func (e *env) pipeline() *Pipeline {
	return NewPipeline(Deps{
		Store:    e.store,
		Archiver: e.arch,
		Enricher: e.enrich,
		Journal:  e.journal,
	}, e.opts)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const validRow = "2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0"

// =============================================================================
// Process
// =============================================================================

func TestProcess_CommitArchives(t *testing.T) {
	e := newEnv(t)
	path := writeFile(t, e.staging, "drive.txt", []byte(table(validRow, "2023.05.01_10.00.01\t10.0\t-7.0\t51011\t2G\tDevX\t1800\t-113\t20\t5.0\t1.0")))

	out := e.pipeline().Process(context.Background(), path)

	if out.Err != nil {
		t.Fatalf("Process() error = %v", out.Err)
	}
	if out.Result != ResultArchived {
		t.Errorf("Result = %q, want %q", out.Result, ResultArchived)
	}
	if exists(path) {
		t.Error("source file still in staging")
	}
	if !exists(filepath.Join(e.backup, "drive.txt")) {
		t.Error("file missing from backup")
	}
	if n := e.store.count(); n != 1 {
		t.Fatalf("inserted %d documents, want 1", n)
	}

	doc := e.store.docs[0]
	if doc.FileName != "drive.txt" {
		t.Errorf("FileName = %q, want drive.txt", doc.FileName)
	}
	if len(doc.Data) != 1 {
		t.Fatalf("document has %d rows, want 1 (noise row dropped)", len(doc.Data))
	}
	if doc.Data[0].NetworkMode != "LTE" {
		t.Errorf("NetworkMode = %q, want LTE", doc.Data[0].NetworkMode)
	}
	if out.DocumentID != doc.ID.String() {
		t.Errorf("DocumentID = %q, want %q", out.DocumentID, doc.ID)
	}
	if len(e.journal.outcomes) != 1 {
		t.Errorf("journaled %d outcomes, want 1", len(e.journal.outcomes))
	}
}

func TestProcess_RejectedTypeDeleted(t *testing.T) {
	e := newEnv(t)
	path := writeFile(t, e.staging, "photo.jpg", []byte(table(validRow)))

	out := e.pipeline().Process(context.Background(), path)

	if !errors.Is(out.Err, ErrRejectedInput) {
		t.Errorf("Err = %v, want ErrRejectedInput", out.Err)
	}
	if out.Stage != StageValidating {
		t.Errorf("Stage = %q, want %q", out.Stage, StageValidating)
	}
	if exists(path) {
		t.Error("rejected file still exists")
	}
	if e.store.count() != 0 {
		t.Error("rejected file produced a document")
	}
}

func TestProcess_ParseFailureDeleted(t *testing.T) {
	tests := []struct {
		name    string
		content string
		stage   Stage
	}{
		{"missing column", "timestamp\tlongitude\n2023.05.01_10.00.00\t10.0\n", StageParsing},
		{"bad timestamp", table("01/05/2023\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0"), StageCleansing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			path := writeFile(t, e.staging, "bad.txt", []byte(tt.content))

			out := e.pipeline().Process(context.Background(), path)

			if Classify(out.Err) != KindParse {
				t.Errorf("Err = %v, want parse error", out.Err)
			}
			if out.Stage != tt.stage {
				t.Errorf("Stage = %q, want %q", out.Stage, tt.stage)
			}
			if out.Result != ResultDeleted {
				t.Errorf("Result = %q, want %q", out.Result, ResultDeleted)
			}
			if exists(path) {
				t.Error("unparsable file still exists")
			}
			if e.store.count() != 0 {
				t.Error("unparsable file produced a document")
			}
		})
	}
}

func TestProcess_CommitFailureRetainsFile(t *testing.T) {
	e := newEnv(t)
	e.store.err = context.DeadlineExceeded
	path := writeFile(t, e.staging, "drive.txt", []byte(table(validRow)))

	out := e.pipeline().Process(context.Background(), path)

	if Classify(out.Err) != KindCommit {
		t.Errorf("Err = %v, want commit error", out.Err)
	}
	if out.Result != ResultRetained {
		t.Errorf("Result = %q, want %q", out.Result, ResultRetained)
	}
	if !exists(path) {
		t.Error("file removed from staging after commit failure")
	}
	if exists(filepath.Join(e.backup, "drive.txt")) {
		t.Error("file moved to backup after commit failure")
	}
}

func TestProcess_CommitFailureSetAside(t *testing.T) {
	e := newEnv(t)
	e.store.err = errors.New("connection refused")
	e.arch.failed = t.TempDir()
	path := writeFile(t, e.staging, "drive.txt", []byte(table(validRow)))

	out := e.pipeline().Process(context.Background(), path)

	if out.Result != ResultSetAside {
		t.Errorf("Result = %q, want %q", out.Result, ResultSetAside)
	}
	if !exists(filepath.Join(e.arch.failed, "drive.txt")) {
		t.Error("file missing from failed directory")
	}
}

func TestProcess_VanishedIsQuiet(t *testing.T) {
	e := newEnv(t)
	out := e.pipeline().Process(context.Background(), filepath.Join(e.staging, "gone.txt"))

	if !errors.Is(out.Err, ErrVanishedInput) {
		t.Errorf("Err = %v, want ErrVanishedInput", out.Err)
	}
	if out.Result != ResultSkipped {
		t.Errorf("Result = %q, want %q", out.Result, ResultSkipped)
	}
}

func TestProcess_ArchivalFailure(t *testing.T) {
	e := newEnv(t)
	e.arch.archiveOK = false
	path := writeFile(t, e.staging, "drive.txt", []byte(table(validRow)))

	out := e.pipeline().Process(context.Background(), path)

	if Classify(out.Err) != KindArchival {
		t.Errorf("Err = %v, want archival error", out.Err)
	}
	if !out.Committed || out.Result != ResultUnarchived {
		t.Errorf("Committed/Result = %v/%q, want true/%q", out.Committed, out.Result, ResultUnarchived)
	}
	if !exists(path) {
		t.Error("file lost after failed archive")
	}

	// The next run finds the content already stored and only archives.
	e.arch.archiveOK = true
	out = e.pipeline().Process(context.Background(), path)
	if out.Err != nil {
		t.Fatalf("second Process() error = %v", out.Err)
	}
	if n := e.store.count(); n != 1 {
		t.Errorf("inserted %d documents across runs, want 1", n)
	}
	if !exists(filepath.Join(e.backup, "drive.txt")) {
		t.Error("file missing from backup after second run")
	}
}

func TestProcess_RedropAfterArchiveInsertsAgain(t *testing.T) {
	e := newEnv(t)
	content := []byte(table(validRow))
	p := e.pipeline()

	for i := 1; i <= 2; i++ {
		path := writeFile(t, e.staging, "drive.txt", content)
		out := p.Process(context.Background(), path)
		if out.Err != nil {
			t.Fatalf("run %d: Process() error = %v", i, out.Err)
		}
		if out.DocumentID == "" {
			t.Errorf("run %d: archived without insert", i)
		}
	}
	if n := e.store.count(); n != 2 {
		t.Errorf("inserted %d documents, want 2", n)
	}
}

func TestProcess_LenientNumericCells(t *testing.T) {
	tests := []struct {
		name    string
		rows    []string
		wantRow int
		skipped int
	}{
		{
			name:    "empty bitrates",
			rows:    []string{"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t\t"},
			wantRow: 1,
		},
		{
			name:    "fractional arfcn",
			rows:    []string{"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800.0\t-80\t20\t5.0\t1.0"},
			wantRow: 1,
		},
		{
			name: "one bad longitude",
			rows: []string{
				validRow,
				"2023.05.01_10.00.01\tn/a\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0",
				"2023.05.01_10.00.02\t10.1\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0",
			},
			wantRow: 2,
			skipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			path := writeFile(t, e.staging, "drive.txt", []byte(table(tt.rows...)))

			out := e.pipeline().Process(context.Background(), path)

			if out.Err != nil {
				t.Fatalf("Process() error = %v", out.Err)
			}
			if out.Result != ResultArchived {
				t.Errorf("Result = %q, want %q", out.Result, ResultArchived)
			}
			if out.Skipped != tt.skipped {
				t.Errorf("Skipped = %d, want %d", out.Skipped, tt.skipped)
			}
			if !exists(filepath.Join(e.backup, "drive.txt")) {
				t.Error("file missing from backup")
			}
			if n := e.store.count(); n != 1 {
				t.Fatalf("inserted %d documents, want 1", n)
			}
			if got := len(e.store.docs[0].Data); got != tt.wantRow {
				t.Errorf("document has %d rows, want %d", got, tt.wantRow)
			}
		})
	}
}

func TestProcess_EmptyDocumentPolicy(t *testing.T) {
	noiseOnly := table("2023.05.01_10.00.00\t10.0\t-7.0\t51011\t2G\tDevX\t1800\t-113\t20\t5.0\t1.0")

	tests := []struct {
		name       string
		writeEmpty bool
		wantDocs   int
	}{
		{"written", true, 1},
		{"suppressed", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.opts.WriteEmpty = tt.writeEmpty
			path := writeFile(t, e.staging, "noise.txt", []byte(noiseOnly))

			out := e.pipeline().Process(context.Background(), path)

			if out.Err != nil {
				t.Fatalf("Process() error = %v", out.Err)
			}
			if n := e.store.count(); n != tt.wantDocs {
				t.Fatalf("inserted %d documents, want %d", n, tt.wantDocs)
			}
			if tt.wantDocs == 1 {
				if d := e.store.docs[0].Data; d == nil || len(d) != 0 {
					t.Errorf("Data = %v, want empty non-nil", d)
				}
			}
			if out.Result != ResultArchived {
				t.Errorf("Result = %q, want %q", out.Result, ResultArchived)
			}
		})
	}
}

func TestProcess_Enrichment(t *testing.T) {
	tests := []struct {
		name     string
		geocoder fakeGeocoder
		wantCity string
	}{
		{"resolved", fakeGeocoder{city: "JAKARTA"}, "JAKARTA"},
		{"unavailable", fakeGeocoder{err: errors.New("503")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.enrich = CityEnricher{Geocoder: tt.geocoder}
			path := writeFile(t, e.staging, "drive.txt", []byte(table(validRow)))

			out := e.pipeline().Process(context.Background(), path)

			if out.Err != nil {
				t.Fatalf("Process() error = %v", out.Err)
			}
			if got := e.store.docs[0].Data[0].City; got != tt.wantCity {
				t.Errorf("City = %q, want %q", got, tt.wantCity)
			}
		})
	}
}

func TestProcess_SettleDelayHonorsCancel(t *testing.T) {
	e := newEnv(t)
	e.opts.SettleDelay = time.Hour
	path := writeFile(t, e.staging, "drive.txt", []byte(table(validRow)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := e.pipeline().Process(ctx, path)

	if out.Result != ResultArchived {
		t.Errorf("Result = %q, want %q", out.Result, ResultArchived)
	}
	if out.Duration() > 10*time.Second {
		t.Errorf("Process took %v, settle delay ignored cancellation", out.Duration())
	}
}

func TestBuildDocument(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("WIB", 7*3600))
	doc := BuildDocument("/staging/drive.txt", nil, now)

	if doc.FileName != "drive.txt" {
		t.Errorf("FileName = %q, want drive.txt", doc.FileName)
	}
	if doc.Data == nil {
		t.Error("Data is nil, want empty slice")
	}
	if !doc.IngestedAt.Equal(now) || doc.IngestedAt.Location() != time.UTC {
		t.Errorf("IngestedAt = %v, want %v in UTC", doc.IngestedAt, now)
	}
	if other := BuildDocument("x", nil, now); other.ID == doc.ID {
		t.Error("documents share an ID")
	}
}
