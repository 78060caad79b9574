// Package ingest turns one staged drive-test export into one stored document.
//
// A file moves through a fixed sequence of stages:
//
//	observed -> validating -> parsing -> cleansing -> committing -> archived | deleted
//
// [ValidateFile] rejects files whose name declares a non-text content type.
// [ReadTable] decodes the tab-separated export into typed [Measurement] rows,
// skipping malformed lines. [Cleanse] coerces and normalizes those rows into
// [Row] values, and [BuildDocument] wraps them with file metadata. The
// [Pipeline] composes the stages with a store, an archiver, an optional
// enricher and an outcome journal.
//
// # Failure Policy
//
// Any failure before committing deletes the source file. A failed store write
// leaves the file in the staging directory (or moves it to a configured
// failed directory) so a later event can retry it. A failed move after a
// successful commit is reported as an [ArchivalError] and journaled as an
// alert, since the stored data and the physical file are now out of step.
//
// Errors carry stable codes (see [Describe]) so journal entries and log lines
// can be searched by failure kind.
package ingest
