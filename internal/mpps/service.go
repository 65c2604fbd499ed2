// Package mpps implements the MPPS Service dispatcher (spec.md §4.1),
// grounded on original_source/dcm4chee-proxy-service's
// Mpps.java#onDimseRQ. It ties together the Forward-Rule Evaluator, the
// Spool Writer, the MPPS-to-Dose-SR Transformer and the Live Forwarder.
package mpps

import (
	"context"
	"fmt"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
	"github.com/dcmrelay/mpps-proxy/internal/metrics"
	"github.com/dcmrelay/mpps-proxy/internal/spool"
	"github.com/dcmrelay/mpps-proxy/internal/transform"
	"github.com/rs/zerolog/log"
)

// Dirs names the six proxy-AE spool root paths spec.md §6 requires.
type Dirs struct {
	CStoreDir  string
	NCreateDir string
	NSetDir    string
	DoseSrDir  string
	NActionDir string
	NEventDir  string
}

// Service is the MPPS dispatcher. One Service instance serves every
// accepted association belonging to a single proxy AE.
type Service struct {
	dirs        Dirs
	evaluator   forwardrule.Evaluator
	writer      *spool.Writer
	transformer *transform.Transformer
}

func NewService(dirs Dirs, evaluator forwardrule.Evaluator, writer *spool.Writer, transformer *transform.Transformer) *Service {
	return &Service{dirs: dirs, evaluator: evaluator, writer: writer, transformer: transformer}
}

// OnDimseRQ implements spec.md §4.1's on_dimse_request contract. command
// carries the DIMSE command attributes (Affected*/Requested* SOP
// class/instance, Message ID); data is the payload dataset. pc supplies
// the negotiated transfer syntax.
func (s *Service) OnDimseRQ(ctx context.Context, session *dimse.Session, pc dimse.PresentationContext, kind dimse.Kind, command, data *dicom.Dataset) error {
	if kind != dimse.NCreateRQ && kind != dimse.NSetRQ {
		return fmt.Errorf("mpps: unsupported dimse kind %s", kind)
	}

	cuid, iuid := affectedOrRequested(kind, command)

	var err error
	if session.Upstream != nil {
		err = s.forwardLive(session, pc, kind, cuid, iuid, data)
	} else {
		err = s.spoolAndRespond(ctx, session, pc, kind, cuid, iuid, command, data)
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	log.Info().
		Str("dimse_kind", string(kind)).
		Str("calling_aet", session.CallingAET()).
		Str("called_aet", session.CalledAET()).
		Str("iuid", iuid).
		Str("outcome", outcome).
		Msg("mpps: dispatched")
	metrics.MPPSDispatched(string(kind), outcome)
	return err
}

func affectedOrRequested(kind dimse.Kind, command *dicom.Dataset) (cuid, iuid string) {
	if kind == dimse.NCreateRQ {
		return command.GetString(dicom.TagAffectedSOPClassUID), command.GetString(dicom.TagAffectedSOPInstanceUID)
	}
	return command.GetString(dicom.TagRequestedSOPClassUID), command.GetString(dicom.TagRequestedSOPInstanceUID)
}

// forwardLive relays the request upstream without touching the spool
// (spec.md §4.1 step 1, §4.6).
func (s *Service) forwardLive(session *dimse.Session, pc dimse.PresentationContext, kind dimse.Kind, cuid, iuid string, data *dicom.Dataset) error {
	sink := dimse.ResponseSinkFunc(func(command, rspData *dicom.Dataset) {
		rspKind := dimse.NCreateRSP
		if kind == dimse.NSetRQ {
			rspKind = dimse.NSetRSP
		}
		if err := session.WriteDIMSE(pc, rspKind, command, rspData); err != nil {
			log.Warn().Err(err).Msg("mpps: failed to write live-forward response back to accepting association")
		}
	})

	if kind == dimse.NCreateRQ {
		return session.Upstream.NCreate(cuid, iuid, data, pc.TransferSyntax, sink)
	}
	return session.Upstream.NSet(cuid, iuid, data, pc.TransferSyntax, sink)
}

// spoolAndRespond evaluates forward rules, spools (or transforms) to
// every resolved destination, and on success synthesizes and writes the
// mirrored RSP (spec.md §4.1 steps 2-5).
func (s *Service) spoolAndRespond(ctx context.Context, session *dimse.Session, pc dimse.PresentationContext, kind dimse.Kind, cuid, iuid string, command, data *dicom.Dataset) error {
	matches := s.evaluator.Evaluate(session.CallingAET(), session.CalledAET(), cuid, kind, data)
	if len(matches) == 0 {
		return dimse.ProcessingFailure("no matching forward rule", nil)
	}

	fmi := dicom.NewFMI(iuid, cuid, pc.TransferSyntax)

	for _, match := range matches {
		for _, destinationAET := range match.Destinations {
			if err := s.spoolOne(ctx, match.Rule, session.CallingAET(), kind, iuid, fmi, data, destinationAET); err != nil {
				return err
			}
		}
	}

	rspKind := dimse.NCreateRSP
	if kind == dimse.NSetRQ {
		rspKind = dimse.NSetRSP
	}
	rsp := command.Clone()
	if err := session.WriteDIMSE(pc, rspKind, rsp, nil); err != nil {
		log.Warn().Err(err).Msg("mpps: failed to write response; peer likely gone")
	}
	return nil
}

// spoolOne performs the spool (or Dose-SR transform) for a single
// resolved destination of a single matched rule, per spec.md §4.1 step 3.
func (s *Service) spoolOne(ctx context.Context, rule forwardrule.Rule, callingAET string, kind dimse.Kind, iuid string, fmi dicom.FMI, data *dicom.Dataset, destinationAET string) error {
	if rule.IsMpps2DoseSr() {
		if kind == dimse.NCreateRQ {
			return s.transformer.HandleNCreate(callingAET, rule.UseCallingAET, s.dirs.DoseSrDir, destinationAET, fmi, data)
		}
		return s.transformer.HandleNSet(ctx, rule, callingAET, s.dirs.DoseSrDir, s.dirs.CStoreDir, destinationAET, iuid, data)
	}

	suffix, baseDir := ".dcm", s.dirs.CStoreDir
	if kind == dimse.NSetRQ {
		baseDir = s.dirs.NSetDir
	} else {
		baseDir = s.dirs.NCreateDir
	}

	tmp, err := s.writer.Create(callingAET, rule.UseCallingAET, baseDir, destinationAET, fmi, data)
	if err != nil {
		return err
	}
	if _, err := s.writer.Rename(tmp, suffix); err != nil {
		return err
	}
	return nil
}
