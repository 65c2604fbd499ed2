// Package recovery implements the crash-recovery sweep run once at
// process start and once at shutdown (spec.md §4.5), grounded on
// original_source/dcm4chee-proxy-service's Proxy.java resetSpoolFiles
// and its renameSndFiles/deletePartFiles/deleteTmpBulkFiles/
// deleteIncompleteDcmFiles helpers.
package recovery

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dcmrelay/mpps-proxy/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	sentSuffix    = ".snd"
	partSuffix    = ".part"
	tmpBulkSuffix = ".tmpBulkData"
	datasetSuffix = ".dcm"
	sidecarSuffix = ".info"
)

// RootKind distinguishes the five proxy-AE spool roots named in
// spec.md §6. Every root is populated by spool.Writer.Create under
// <root>/<destinationAET>/ (spec.md Invariant 3), so every kind recurses
// one level into destination subdirectories; only the C-STORE root also
// gets the orphan-.dcm and tmpBulkData sweeps (SPEC_FULL.md §4.5).
type RootKind int

const (
	RootCStore RootKind = iota
	RootNAction
	RootNEvent
	RootNCreate
	RootNSet
)

// Sweeper walks a proxy AE's spool roots and restores them to a clean
// state. None of its actions are fatal; every failure is logged and the
// sweep continues.
type Sweeper struct{}

func NewSweeper() *Sweeper { return &Sweeper{} }

// Sweep runs the full recovery pass over root, dispatching to the
// per-kind behavior spec.md §4.5/SPEC_FULL.md §4.5 describes.
func (s *Sweeper) Sweep(root string, kind RootKind) {
	if _, err := os.Stat(root); err != nil {
		return
	}

	switch kind {
	case RootCStore:
		s.sweepDestinationDirs(root, true)
	case RootNAction, RootNEvent, RootNCreate, RootNSet:
		s.sweepDestinationDirs(root, false)
	}
}

// sweepDestinationDirs recurses one level into root's immediate
// subdirectories (each a destinationAET) and applies the per-entry
// cleanup rules to each; withOrphanSweep additionally runs the
// C-STORE-only orphan-.dcm and tmpBulkData cleanups.
func (s *Sweeper) sweepDestinationDirs(root string, withOrphanSweep bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Warn().Err(err).Str("root", root).Msg("recovery: failed to list spool root")
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		s.renameSndFiles(dir)
		s.deletePartFiles(dir)
		if withOrphanSweep {
			s.deleteTmpBulkFiles(dir)
			s.deleteIncompleteDcmFiles(dir)
		}
	}
}

// renameSndFiles restores every *.snd file to its pre-transmit form by
// stripping the suffix; a name with no further extension is malformed
// and is deleted instead (spec.md §4.5 step 1).
func (s *Sweeper) renameSndFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sentSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		restored := strings.TrimSuffix(path, sentSuffix)
		if !strings.Contains(filepath.Base(restored), ".") {
			if err := os.Remove(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("recovery: failed to delete malformed .snd file")
			} else {
				log.Info().Str("path", path).Msg("recovery: deleted malformed .snd file")
				metrics.RecoveryAction("delete_malformed_snd")
			}
			continue
		}
		if err := os.Rename(path, restored); err != nil {
			log.Warn().Err(err).Str("from", path).Str("to", restored).Msg("recovery: failed to rename .snd file back")
		} else {
			log.Info().Str("from", path).Str("to", restored).Msg("recovery: restored in-flight file")
			metrics.RecoveryAction("restore_snd")
		}
	}
}

// deletePartFiles deletes every *.part temp file (spec.md §4.5 step 2).
func (s *Sweeper) deletePartFiles(dir string) {
	s.deleteMatching(dir, partSuffix)
}

// deleteTmpBulkFiles deletes every *.tmpBulkData scratch file, C-STORE
// root only (spec.md §4.5 step 3).
func (s *Sweeper) deleteTmpBulkFiles(dir string) {
	s.deleteMatching(dir, tmpBulkSuffix)
}

func (s *Sweeper) deleteMatching(dir, suffix string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("recovery: failed to delete file")
		} else {
			log.Info().Str("path", path).Msg("recovery: deleted")
			metrics.RecoveryAction("delete_" + strings.TrimPrefix(suffix, "."))
		}
	}
}

// deleteIncompleteDcmFiles deletes every *.dcm without a matching
// <stem>.info sidecar, C-STORE root only (spec.md §4.5 step 4).
func (s *Sweeper) deleteIncompleteDcmFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), datasetSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		stem := strings.TrimSuffix(path, datasetSuffix)
		if _, err := os.Stat(stem + sidecarSuffix); err == nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("recovery: failed to delete orphan dataset")
		} else {
			log.Info().Str("path", path).Msg("recovery: deleted orphan dataset without sidecar")
			metrics.RecoveryAction("delete_orphan_dcm")
		}
	}
}
