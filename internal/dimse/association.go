package dimse

import "github.com/dcmrelay/mpps-proxy/internal/dicom"

// Association is the contract this core needs from an accepted DICOM
// association. The real association/PDU layer is out of scope (spec.md
// §1); this interface is its entire surface area as far as the MPPS
// core is concerned.
type Association interface {
	CallingAET() string
	CalledAET() string

	// WriteDIMSE writes a DIMSE response (command + optional data) back
	// to the peer on the given presentation context. Implementations
	// should return an association-state error if the peer has already
	// gone away; the MPPS Service logs and swallows such errors
	// (spec.md §4.1 step 4).
	WriteDIMSE(pc PresentationContext, kind Kind, command, data *dicom.Dataset) error
}

// Session is the strongly-typed per-association context that replaces the
// property bag described in spec.md Design Notes §9. The only property
// the original design kept on the association for the lifetime of a
// request was the upstream association for live-forwarding;
// `file_suffix`, the original's other property, is no longer a property
// at all — spool.Writer.Rename takes it as a direct argument.
type Session struct {
	Association
	Upstream UpstreamAssociation // nil unless live-forwarding is active
}

// UpstreamAssociation is the contract the Live Forwarder needs from an
// already-open outbound association (spec.md §4.6).
type UpstreamAssociation interface {
	NCreate(cuid, iuid string, data *dicom.Dataset, tsuid string, sink ResponseSink) error
	NSet(cuid, iuid string, data *dicom.Dataset, tsuid string, sink ResponseSink) error
}

// ResponseSink receives an asynchronous DIMSE response from the upstream
// association (spec.md §4.6, Design Notes §9's "DIMSE response sink"
// trait). It is implemented by a closure or small struct capturing the
// accepting association and presentation context.
type ResponseSink interface {
	OnResponse(command, data *dicom.Dataset)
}

// ResponseSinkFunc adapts a plain function to ResponseSink.
type ResponseSinkFunc func(command, data *dicom.Dataset)

func (f ResponseSinkFunc) OnResponse(command, data *dicom.Dataset) { f(command, data) }
