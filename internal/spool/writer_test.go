package spool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
)

func sampleFMIAndData() (dicom.FMI, *dicom.Dataset) {
	fmi := dicom.NewFMI("1.2.3", dicom.SOPClassModalityPerformedProcedureStep, dicom.TransferSyntaxExplicitVRLittleEndian)
	data := dicom.NewDataset()
	data.Set(dicom.TagAffectedSOPInstanceUID, "UI", "1.2.3")
	return fmi, data
}

func TestCreateRenameLeavesFinalAndSidecarNoPart(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(nil)
	fmi, data := sampleFMIAndData()

	tmp, err := w.Create("MOD1", "", base, "ARCHIVE", fmi, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	final, err := w.Rename(tmp, ".dcm")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := os.Stat(final); err != nil {
		t.Errorf("expected final file to exist: %v", err)
	}
	infoPath := infoPathFor(final)
	if _, err := os.Stat(infoPath); err != nil {
		t.Errorf("expected sidecar to exist: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("expected .part file to be gone after rename, stat err = %v", err)
	}

	sc, err := ReadSidecar(final)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if sc.SourceAET != "MOD1" {
		t.Errorf("got source-aet %q, want MOD1", sc.SourceAET)
	}
}

func TestDeleteRemovesDatasetAndSidecarAndPrunesDir(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(nil)
	fmi, data := sampleFMIAndData()

	tmp, err := w.Create("MOD1", "", base, "ARCHIVE", fmi, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final, err := w.Rename(tmp, ".dcm")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}

	w.Delete(final)

	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Errorf("expected dataset to be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(infoPathFor(final)); !os.IsNotExist(err) {
		t.Errorf("expected sidecar to be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(final)); !os.IsNotExist(err) {
		t.Errorf("expected now-empty destination directory to be pruned")
	}
}

func TestCreateRenameDeleteCycleReturnsToStartingState(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(nil)
	fmi, data := sampleFMIAndData()

	before, _ := os.ReadDir(base)

	tmp, err := w.Create("MOD1", "", base, "ARCHIVE", fmi, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final, err := w.Rename(tmp, ".dcm")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	w.Delete(final)

	after, _ := os.ReadDir(base)
	if len(before) != 0 || len(after) != 0 {
		t.Errorf("expected base dir empty before and after cycle, got before=%d after=%d", len(before), len(after))
	}
}

func TestRenameToExistingTargetSurfacesOutOfResources(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(nil)
	fmi, data := sampleFMIAndData()

	tmp1, err := w.Create("MOD1", "", base, "ARCHIVE", fmi, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final, err := w.Rename(tmp1, ".dcm")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}

	tmp2, err := w.Create("MOD1", "", base, "ARCHIVE", fmi, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Force a collision: point tmp2's stem at final's stem.
	collidingTmp := stemOf(final) + ".part"
	if err := os.Rename(tmp2, collidingTmp); err != nil {
		t.Fatalf("test setup rename: %v", err)
	}

	if _, err := w.Rename(collidingTmp, ".dcm"); err == nil {
		t.Error("expected rename collision to surface an error")
	}
}

func TestStemOfStripsFinalExtensionOnly(t *testing.T) {
	got := stemOf("/a/b/1.2.3.840.dcm")
	want := "/a/b/1.2.3.840"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCreateSetsUseCallingAETWhenOverridden(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(nil)
	fmi, data := sampleFMIAndData()

	tmp, err := w.Create("MOD1", "OVERRIDE_AET", base, "ARCHIVE", fmi, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final, err := w.Rename(tmp, ".dcm")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	sc, err := ReadSidecar(final)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if sc.UseCallingAET != "OVERRIDE_AET" {
		t.Errorf("got use-calling-aet %q, want OVERRIDE_AET", sc.UseCallingAET)
	}
}
