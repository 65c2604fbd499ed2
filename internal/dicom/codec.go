package dicom

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Codec round-trips an FMI+Dataset pair to and from a byte stream. This is
// a minimal, self-contained encoding — not a Part-10-conformant writer —
// because the real DICOM codec is an out-of-scope external collaborator
// (spec.md §1/§6); this proxy only ever reads back what it itself wrote,
// for the N-CREATE/N-SET merge step and the spool round-trip tests.
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

const magic uint32 = 0x44434D50 // "DCMP"

// Write serializes fmi and ds as: magic, FMI fields, element count, then
// each element's tag/VR/value-count/values.
func (Codec) Write(w io.Writer, fmi FMI, ds *Dataset) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, magic); err != nil {
		return err
	}
	if err := writeString(bw, fmi.MediaStorageSOPInstanceUID); err != nil {
		return err
	}
	if err := writeString(bw, fmi.MediaStorageSOPClassUID); err != nil {
		return err
	}
	if err := writeString(bw, fmi.TransferSyntaxUID); err != nil {
		return err
	}
	tags := ds.Tags()
	if err := binary.Write(bw, binary.BigEndian, uint32(len(tags))); err != nil {
		return err
	}
	for _, tag := range tags {
		el := ds.Element(tag)
		if err := binary.Write(bw, binary.BigEndian, uint32(tag)); err != nil {
			return err
		}
		if err := writeString(bw, string(el.VR)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, uint32(len(el.Values))); err != nil {
			return err
		}
		for _, v := range el.Values {
			if err := writeString(bw, v); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Read deserializes a stream written by Write.
func (Codec) Read(r io.Reader) (FMI, *Dataset, error) {
	br := bufio.NewReader(r)
	var got uint32
	if err := binary.Read(br, binary.BigEndian, &got); err != nil {
		return FMI{}, nil, fmt.Errorf("read magic: %w", err)
	}
	if got != magic {
		return FMI{}, nil, fmt.Errorf("not a spool dataset (bad magic 0x%08X)", got)
	}
	fmi := FMI{}
	var err error
	if fmi.MediaStorageSOPInstanceUID, err = readString(br); err != nil {
		return FMI{}, nil, err
	}
	if fmi.MediaStorageSOPClassUID, err = readString(br); err != nil {
		return FMI{}, nil, err
	}
	if fmi.TransferSyntaxUID, err = readString(br); err != nil {
		return FMI{}, nil, err
	}
	var count uint32
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return FMI{}, nil, err
	}
	ds := NewDataset()
	for i := uint32(0); i < count; i++ {
		var rawTag uint32
		if err := binary.Read(br, binary.BigEndian, &rawTag); err != nil {
			return FMI{}, nil, err
		}
		vr, err := readString(br)
		if err != nil {
			return FMI{}, nil, err
		}
		var valueCount uint32
		if err := binary.Read(br, binary.BigEndian, &valueCount); err != nil {
			return FMI{}, nil, err
		}
		values := make([]string, valueCount)
		for j := range values {
			if values[j], err = readString(br); err != nil {
				return FMI{}, nil, err
			}
		}
		ds.SetValues(Tag(rawTag), VR(vr), values)
	}
	return fmi, ds, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
