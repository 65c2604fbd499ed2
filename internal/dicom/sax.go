package dicom

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseElementEvents parses a template's rendered output into a fresh
// Dataset. spec.md §6 describes that output as "a DICOM dataset encoded
// in a SAX-event form the codec adapter consumes"; this proxy's own
// narrow reading of that form is one element event per line:
//
//	GGGG,EEEE,VR,VALUE
//
// (hex group, hex element, VR code, value). Blank lines and lines
// starting with # are ignored. A full SR content-tree SAX parser is the
// same out-of-scope codec collaborator spec.md §1 excludes; this only
// has to survive what this proxy's own templates emit.
func ParseElementEvents(r io.Reader) (*Dataset, error) {
	ds := NewDataset()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.SplitN(text, ",", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("dicom: malformed element event at line %d: %q", line, text)
		}
		group, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("dicom: invalid group at line %d: %w", line, err)
		}
		element, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("dicom: invalid element at line %d: %w", line, err)
		}
		vr := VR(strings.TrimSpace(parts[2]))
		ds.Set(NewTag(uint16(group), uint16(element)), vr, parts[3])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}
