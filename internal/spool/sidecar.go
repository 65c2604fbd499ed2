package spool

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
)

// Sidecar is the parsed form of a spool entry's .info file: plaintext
// key=value pairs, one per line, ISO-8859-1 safe (spec.md §6).
type Sidecar struct {
	SourceAET     string
	UseCallingAET string
}

func writeSidecar(path, sourceAET, useCallingAET string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "source-aet=%s\n", sourceAET); err != nil {
		return err
	}
	if useCallingAET != "" {
		if _, err := fmt.Fprintf(f, "use-calling-aet=%s\n", useCallingAET); err != nil {
			return err
		}
	}
	return f.Sync()
}

// ReadSidecar parses the .info sidecar for datasetPath.
func ReadSidecar(datasetPath string) (Sidecar, error) {
	path := infoPathFor(datasetPath)
	f, err := os.Open(path)
	if err != nil {
		return Sidecar{}, err
	}
	defer f.Close()

	var sc Sidecar
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "source-aet":
			sc.SourceAET = v
		case "use-calling-aet":
			sc.UseCallingAET = v
		}
	}
	return sc, scanner.Err()
}

func writeDataset(f *os.File, fmi dicom.FMI, data *dicom.Dataset) error {
	return dicom.NewCodec().Write(f, fmi, data)
}

// ReadDataset reads back a previously-spooled FMI+dataset, used by the
// MPPS-to-Dose-SR transformer to load a prior .ncreate (spec.md §4.4).
func ReadDataset(path string) (dicom.FMI, *dicom.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return dicom.FMI{}, nil, err
	}
	defer f.Close()
	return dicom.NewCodec().Read(f)
}
