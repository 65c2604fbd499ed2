// Package spool implements the crash-safe on-disk queue every DIMSE
// service in this proxy shares: atomic temp-file write, an .info sidecar
// carrying routing context, and rename-to-final (spec.md §4.3).
//
// Grounded on original_source/dcm4chee-proxy-service's Mpps.java
// createFile/rename/deleteFile.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
	"github.com/dcmrelay/mpps-proxy/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	tempPrefix = "dcm"
	tempSuffix = ".part"
)

// Indexer mirrors spool-entry lifecycle transitions for admin visibility
// only; the filesystem write/rename below is the sole source of truth
// (spec.md Design Notes "Filesystem as queue"). A nil Indexer, or
// NoopIndexer, disables this entirely.
type Indexer interface {
	RecordTransition(destinationAET, stem, suffix, sourceAET, transition string)
}

type NoopIndexer struct{}

func (NoopIndexer) RecordTransition(string, string, string, string, string) {}

// Writer implements create/rename/delete for spool entries.
type Writer struct {
	indexer Indexer
}

func NewWriter(indexer Indexer) *Writer {
	if indexer == nil {
		indexer = NoopIndexer{}
	}
	return &Writer{indexer: indexer}
}

// Create ensures baseDir/destinationAET exists, writes fmi+data to a
// uniquely-named dcm*.part temp file, and writes its .info sidecar with
// source-aet (and, if the rule overrides it, use-calling-aet). It returns
// the temp file's path. On any I/O error both the temp file and the
// sidecar are removed and an OutOfResources ServiceError is returned
// (spec.md §4.3 create steps 1-6).
func (w *Writer) Create(callingAET, useCallingAET, baseDir, destinationAET string, fmi dicom.FMI, data *dicom.Dataset) (string, error) {
	start := time.Now()
	dir := filepath.Join(baseDir, destinationAET)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.SpoolTransition("create", "failure")
		return "", dimse.OutOfResources(fmt.Sprintf("failed to create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*"+tempSuffix)
	if err != nil {
		metrics.SpoolTransition("create", "failure")
		return "", dimse.OutOfResources("failed to create temp file", err)
	}
	path := tmp.Name()
	infoPath := infoPathFor(path)

	if werr := writeDataset(tmp, fmi, data); werr != nil {
		tmp.Close()
		os.Remove(path)
		os.Remove(infoPath)
		log.Warn().Err(werr).Str("path", path).Msg("spool: failed to write dataset")
		metrics.SpoolTransition("create", "failure")
		return "", dimse.OutOfResources("failed to write dataset", werr)
	}
	if err := tmp.Sync(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("spool: fsync failed")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		os.Remove(infoPath)
		metrics.SpoolTransition("create", "failure")
		return "", dimse.OutOfResources("failed to close temp file", err)
	}

	if err := writeSidecar(infoPath, callingAET, useCallingAET); err != nil {
		os.Remove(path)
		os.Remove(infoPath)
		log.Warn().Err(err).Str("path", infoPath).Msg("spool: failed to write sidecar")
		metrics.SpoolTransition("create", "failure")
		return "", dimse.OutOfResources("failed to write sidecar", err)
	}

	log.Info().Str("path", path).Str("calling_aet", callingAET).Msg("spool: create")
	w.indexer.RecordTransition(destinationAET, stemOf(path), tempSuffix, callingAET, "create")
	metrics.SpoolTransition("create", "success")
	metrics.ObserveSpoolWrite(time.Since(start).Seconds())
	return path, nil
}

// Rename atomically renames tempPath to stemOf(tempPath)+suffix and
// touches its mtime. An existing file at the target is never replaced:
// the collision is returned as an OutOfResources ServiceError. suffix is
// a direct argument — unlike the original's association-scoped
// `file_suffix` property (spec.md Design Notes §9) — because it is always
// known at the call site.
func (w *Writer) Rename(tempPath, suffix string) (string, error) {
	final := stemOf(tempPath) + suffix
	if _, err := os.Lstat(final); err == nil {
		log.Warn().Str("from", tempPath).Str("to", final).Msg("spool: rename target already exists")
		metrics.SpoolTransition("rename", "failure")
		return "", dimse.OutOfResources("Failed to rename file", &os.LinkError{Op: "rename", Old: tempPath, New: final, Err: os.ErrExist})
	}
	if err := os.Rename(tempPath, final); err != nil {
		log.Warn().Err(err).Str("from", tempPath).Str("to", final).Msg("spool: rename failed")
		metrics.SpoolTransition("rename", "failure")
		return "", dimse.OutOfResources("Failed to rename file", err)
	}
	now := time.Now()
	if err := os.Chtimes(final, now, now); err != nil {
		log.Warn().Err(err).Str("path", final).Msg("spool: failed to touch mtime after rename")
	}
	log.Info().Str("from", tempPath).Str("to", final).Msg("spool: rename")
	w.indexer.RecordTransition(destinationAETFromPath(final), stemOf(final), suffix, "", "rename")
	metrics.SpoolTransition("rename", "success")
	return final, nil
}

// Delete removes datasetPath and its sidecar (derived by stripping the
// final extension), then prunes the enclosing directory if it is now
// empty. Every failure is logged and never raised (spec.md §4.3 delete).
func (w *Writer) Delete(datasetPath string) {
	if err := os.Remove(datasetPath); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Str("path", datasetPath).Msg("spool: failed to delete dataset")
	} else {
		log.Debug().Str("path", datasetPath).Msg("spool: delete")
	}

	info := infoPathFor(datasetPath)
	if err := os.Remove(info); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("path", info).Msg("spool: failed to delete sidecar")
	} else {
		log.Debug().Str("path", info).Msg("spool: delete sidecar")
	}

	dir := filepath.Dir(datasetPath)
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		if rmErr := os.Remove(dir); rmErr != nil {
			log.Debug().Err(rmErr).Str("dir", dir).Msg("spool: failed to prune empty directory")
		}
	}
	w.indexer.RecordTransition(destinationAETFromPath(datasetPath), stemOf(datasetPath), "", "", "delete")
	metrics.SpoolTransition("delete", "success")
}

// stemOf strips the final extension from path: everything up to, but not
// including, the last '.' in the final path element. This is the single
// rule the original applied inconsistently (spec.md Open Question §9.3,
// resolved in DESIGN.md).
func stemOf(path string) string {
	dir, base := filepath.Split(path)
	if idx := strings.LastIndex(base, "."); idx != -1 {
		base = base[:idx]
	}
	return filepath.Join(dir, base)
}

func infoPathFor(path string) string {
	return stemOf(path) + ".info"
}

// destinationAETFromPath recovers the destinationAET directory segment
// from a spool path of the form <baseDir>/<destinationAET>/<file>, for
// best-effort index bookkeeping only.
func destinationAETFromPath(path string) string {
	return filepath.Base(filepath.Dir(path))
}
