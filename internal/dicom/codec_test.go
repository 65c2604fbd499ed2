package dicom

import (
	"bytes"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	fmi := NewFMI("1.2.3", SOPClassModalityPerformedProcedureStep, TransferSyntaxExplicitVRLittleEndian)
	ds := NewDataset()
	ds.Set(TagAffectedSOPInstanceUID, "UI", "1.2.3")
	ds.SetValues(TagSOPClassUID, "UI", []string{"1.1.1", "2.2.2"})

	var buf bytes.Buffer
	codec := NewCodec()
	if err := codec.Write(&buf, fmi, ds); err != nil {
		t.Fatalf("Write: %v", err)
	}

	gotFMI, gotDS, err := codec.Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotFMI != fmi {
		t.Errorf("FMI round-trip mismatch: got %+v, want %+v", gotFMI, fmi)
	}
	if got := gotDS.GetString(TagAffectedSOPInstanceUID); got != "1.2.3" {
		t.Errorf("got %q", got)
	}
	el := gotDS.Element(TagSOPClassUID)
	if el == nil || len(el.Values) != 2 || el.Values[1] != "2.2.2" {
		t.Errorf("multi-valued element round-trip failed: %+v", el)
	}
}

func TestCodecRejectsBadMagic(t *testing.T) {
	codec := NewCodec()
	if _, _, err := codec.Read(bytes.NewReader([]byte{0, 0, 0, 0})); err == nil {
		t.Error("expected error on bad magic")
	}
}
