// Package transform implements the MPPS-to-Dose-SR conversion path
// (spec.md §4.4), grounded on
// original_source/dcm4chee-proxy-service's Mpps.java
// processNSetMpps2DoseSR/transformMpps2DoseSr.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
	"github.com/dcmrelay/mpps-proxy/internal/metrics"
	"github.com/dcmrelay/mpps-proxy/internal/spool"
	"github.com/dcmrelay/mpps-proxy/internal/template"
	"github.com/rs/zerolog/log"
)

// params are the three named transform parameters spec.md §4.4.2 passes
// into the compiled template.
type params struct {
	IrradiationEventUID                  string
	DeviceObserverUID                    string
	PerformedProcedureStepSOPInstanceUID string
}

// Transformer implements the two-phase MPPS-to-Dose-SR conversion: an
// N-CREATE half that defers to a .ncreate spool file, and an N-SET half
// that merges, converts and spools the resulting Dose SR instance.
type Transformer struct {
	writer    *spool.Writer
	templates *template.Cache
}

func NewTransformer(writer *spool.Writer, templates *template.Cache) *Transformer {
	return &Transformer{writer: writer, templates: templates}
}

// HandleNCreate spools the incoming N-CREATE dataset to
// doseSrBase/destinationAET as <iuid>.ncreate (with its <iuid>.info
// sidecar), iuid being fmi's MediaStorageSOPInstanceUID, deferring
// conversion until the matching N-SET arrives (spec.md §4.4 "N-CREATE:
// treat as a deferred first half").
func (t *Transformer) HandleNCreate(callingAET, useCallingAET, doseSrBase, destinationAET string, fmi dicom.FMI, data *dicom.Dataset) error {
	tmp, err := t.writer.Create(callingAET, useCallingAET, doseSrBase, destinationAET, fmi, data)
	if err != nil {
		return err
	}
	final, err := t.writer.Rename(tmp, ".ncreate")
	if err != nil {
		return err
	}
	// HandleNSet locates the deferred half by SOP Instance UID, so the
	// sidecar and then the dataset are moved to their <iuid> names.
	dir, iuid := filepath.Dir(final), fmi.MediaStorageSOPInstanceUID
	if err := os.Rename(strings.TrimSuffix(final, ".ncreate")+".info", filepath.Join(dir, iuid+".info")); err != nil {
		return dimse.OutOfResources("Failed to rename file", err)
	}
	if err := os.Rename(final, filepath.Join(dir, iuid+".ncreate")); err != nil {
		return dimse.OutOfResources("Failed to rename file", err)
	}
	return nil
}

// HandleNSet performs the full merge-convert-spool-cleanup sequence
// described in spec.md §4.4's N-SET steps 1-7.
func (t *Transformer) HandleNSet(ctx context.Context, rule forwardrule.Rule, callingAET, doseSrBase, cstoreBase, destinationAET, iuid string, setData *dicom.Dataset) error {
	ncreatePath := filepath.Join(doseSrBase, destinationAET, iuid+".ncreate")

	createFMI, createData, err := spool.ReadDataset(ncreatePath)
	if err != nil {
		metrics.DoseSrConverted("failure")
		return dimse.ProcessingFailure(fmt.Sprintf("missing .ncreate for iuid %s", iuid), err)
	}

	merged := setData.Clone()
	merged.Merge(createData)

	tmpl, err := t.templates.Get(ctx, rule.Mpps2DoseSrTemplateURI)
	if err != nil {
		metrics.DoseSrConverted("failure")
		return dimse.ProcessingFailure("failed to obtain dose-sr template", err)
	}

	p := params{
		IrradiationEventUID:                  dicom.IrradiationEventUID(iuid),
		DeviceObserverUID:                    dicom.DeviceObserverUID(callingAET),
		PerformedProcedureStepSOPInstanceUID: createFMI.MediaStorageSOPInstanceUID,
	}

	// tmpl.Execute's output is the SAX-event-shaped stream spec.md §6
	// describes (this proxy's own reading: one "GGGG,EEEE,VR,VALUE"
	// element event per line, per dicom.ParseElementEvents); it is
	// captured into a fresh doseSrData, not derived from merged, per
	// spec.md §4.4 N-SET step 3.
	var out bytes.Buffer
	if err := tmpl.Execute(&out, struct {
		params
		Dataset *dicom.Dataset
	}{params: p, Dataset: merged}); err != nil {
		metrics.DoseSrConverted("failure")
		return dimse.ProcessingFailure("dose-sr template execution failed", err)
	}

	doseSrData, err := dicom.ParseElementEvents(&out)
	if err != nil {
		metrics.DoseSrConverted("failure")
		return dimse.ProcessingFailure("failed to parse dose-sr template output", err)
	}

	doseIuid := dicom.NewUID()
	seriesUID := dicom.NewUID()
	doseSrData.Set(dicom.TagSOPInstanceUID, "UI", doseIuid)
	doseSrData.Set(dicom.TagSeriesInstanceUID, "UI", seriesUID)

	doseFMI := dicom.NewFMI(doseIuid, dicom.SOPClassXRayRadiationDoseSRStorage, dicom.TransferSyntaxImplicitVRLittleEndian)

	tmp, err := t.writer.Create(callingAET, rule.UseCallingAET, cstoreBase, destinationAET, doseFMI, doseSrData)
	if err != nil {
		metrics.DoseSrConverted("failure")
		return err
	}
	if _, err := t.writer.Rename(tmp, ".dcm"); err != nil {
		metrics.DoseSrConverted("failure")
		return err
	}

	t.writer.Delete(ncreatePath)

	log.Info().
		Str("source_iuid", iuid).
		Str("dose_sr_iuid", doseIuid).
		Str("destination_aet", destinationAET).
		Msg("transform: mpps converted to dose sr")

	metrics.DoseSrConverted("success")
	return nil
}
