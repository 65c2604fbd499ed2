// Package dicom provides the minimal tag/VR/dataset model this proxy needs
// to route, spool and transform MPPS datasets. It intentionally does not
// implement the full DICOM attribute dataset codec — that is an external
// collaborator per spec (see DESIGN.md) — only the typed tag-to-value map
// contract the core operates on.
package dicom

import "fmt"

// Tag is a DICOM attribute tag, group and element packed into 32 bits:
// (group << 16) | element.
type Tag uint32

func NewTag(group, element uint16) Tag {
	return Tag(uint32(group)<<16 | uint32(element))
}

func (t Tag) Group() uint16   { return uint16(t >> 16) }
func (t Tag) Element() uint16 { return uint16(t) }

func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group(), t.Element())
}

// VR is a DICOM Value Representation code, e.g. "UI", "CS", "PN".
type VR string

// Well-known tags used by the MPPS/Dose-SR pipeline. Values match the
// DICOM Standard Part 6 dictionary.
const (
	TagAffectedSOPClassUID     = Tag(0x00000002)
	TagMessageID               = Tag(0x00000110)
	TagAffectedSOPInstanceUID  = Tag(0x00001000)
	TagRequestedSOPClassUID    = Tag(0x00000003)
	TagRequestedSOPInstanceUID = Tag(0x00001001)

	TagSOPClassUID              = Tag(0x00080016)
	TagSOPInstanceUID           = Tag(0x00080018)
	TagSeriesInstanceUID        = Tag(0x0020000E)
	TagPerformedProcedureStepID = Tag(0x00400253)
)

// Element is a single attribute: a VR and an ordered list of string values.
// MPPS/Dose-SR attributes used by this proxy are all UI/CS/SH/LO/DA/TM-class
// values, which round-trip cleanly as strings; binary VRs are out of scope
// for the MPPS SOP class this core handles.
type Element struct {
	VR     VR
	Values []string
}

// Dataset is an ordered-insertion map from Tag to Element, matching
// spec.md §3's "mapping from DICOM tag to typed value" data model.
type Dataset struct {
	order    []Tag
	elements map[Tag]*Element
}

func NewDataset() *Dataset {
	return &Dataset{elements: make(map[Tag]*Element)}
}

// Set assigns (or overwrites) a single-valued string attribute.
func (d *Dataset) Set(tag Tag, vr VR, value string) {
	d.SetValues(tag, vr, []string{value})
}

// SetValues assigns (or overwrites) a multi-valued attribute.
func (d *Dataset) SetValues(tag Tag, vr VR, values []string) {
	if _, exists := d.elements[tag]; !exists {
		d.order = append(d.order, tag)
	}
	d.elements[tag] = &Element{VR: vr, Values: values}
}

// Has reports whether tag is present in the dataset.
func (d *Dataset) Has(tag Tag) bool {
	_, ok := d.elements[tag]
	return ok
}

// GetString returns the first value of tag, or "" if absent.
func (d *Dataset) GetString(tag Tag) string {
	el, ok := d.elements[tag]
	if !ok || len(el.Values) == 0 {
		return ""
	}
	return el.Values[0]
}

// GetInt returns the first value of tag parsed as an integer, or fallback
// if the attribute is absent or not numeric.
func (d *Dataset) GetInt(tag Tag, fallback int) int {
	el, ok := d.elements[tag]
	if !ok || len(el.Values) == 0 {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(el.Values[0], "%d", &n); err != nil {
		return fallback
	}
	return n
}

// Element returns the raw element for tag, or nil.
func (d *Dataset) Element(tag Tag) *Element {
	return d.elements[tag]
}

// Tags returns the dataset's tags in insertion order.
func (d *Dataset) Tags() []Tag {
	out := make([]Tag, len(d.order))
	copy(out, d.order)
	return out
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	clone := NewDataset()
	for _, tag := range d.order {
		el := d.elements[tag]
		values := make([]string, len(el.Values))
		copy(values, el.Values)
		clone.SetValues(tag, el.VR, values)
	}
	return clone
}

// Merge adds every tag present in other that is not already present in d,
// leaving d's own attributes untouched. This is the dcm4che
// Attributes#merge semantic: the receiver's values win on conflict. The
// MPPS-to-Dose-SR transformer (internal/transform) relies on this exact
// direction — the incoming N-SET dataset is the receiver, the parsed
// .ncreate dataset is other — so that N-SET attributes take precedence
// per spec.md §4.4.
func (d *Dataset) Merge(other *Dataset) {
	for _, tag := range other.order {
		if d.Has(tag) {
			continue
		}
		el := other.elements[tag]
		values := make([]string, len(el.Values))
		copy(values, el.Values)
		d.SetValues(tag, el.VR, values)
	}
}

// FMI is File Meta Information: the minimal Part-10 preamble this proxy
// needs to carry alongside a spooled dataset.
type FMI struct {
	MediaStorageSOPInstanceUID string
	MediaStorageSOPClassUID    string
	TransferSyntaxUID          string
}

// NewFMI builds file meta information, matching
// Attributes.createFileMetaInformation(iuid, cuid, tsuid) in the original.
func NewFMI(sopInstanceUID, sopClassUID, transferSyntaxUID string) FMI {
	return FMI{
		MediaStorageSOPInstanceUID: sopInstanceUID,
		MediaStorageSOPClassUID:    sopClassUID,
		TransferSyntaxUID:          transferSyntaxUID,
	}
}

// Well-known transfer syntax and SOP class UIDs this proxy references
// directly (spec.md §6).
const (
	TransferSyntaxExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
	TransferSyntaxImplicitVRLittleEndian = "1.2.840.10008.1.2"

	SOPClassModalityPerformedProcedureStep = "1.2.840.10008.3.1.2.3.3"
	SOPClassXRayRadiationDoseSRStorage     = "1.2.840.10008.5.1.4.1.1.88.67"
)
