// Package forwardrule resolves which destination AE titles a DIMSE
// request should be forwarded or spooled to, per spec.md §4.2. The
// predicate and destination lists themselves come from configuration (an
// external collaborator per spec.md §6); this package only contracts the
// evaluation order and destination-resolution behavior.
package forwardrule

import (
	"strings"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
)

// Rule is a read-only forward rule, supplied by configuration
// (spec.md §3 "ForwardRule"). Empty match lists mean "match any".
type Rule struct {
	Name                   string
	CallingAETs            []string
	CalledAETs             []string
	SOPClasses             []string
	DimseKinds             []dimse.Kind
	DestinationAETs        []string
	Mpps2DoseSrTemplateURI string
	UseCallingAET          string
}

// Matches reports whether the rule's predicate accepts the given request
// context. An empty list on the rule side always matches.
func (r Rule) Matches(callingAET, calledAET, sopClassUID string, kind dimse.Kind) bool {
	return matchesAny(r.CallingAETs, callingAET) &&
		matchesAny(r.CalledAETs, calledAET) &&
		matchesAny(r.SOPClasses, sopClassUID) &&
		matchesKind(r.DimseKinds, kind)
}

func matchesAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func matchesKind(allowed []dimse.Kind, kind dimse.Kind) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == kind {
			return true
		}
	}
	return false
}

// IsMpps2DoseSr reports whether this rule converts MPPS to a Dose SR
// instead of spooling the dataset verbatim (spec.md §4.4).
func (r Rule) IsMpps2DoseSr() bool {
	return r.Mpps2DoseSrTemplateURI != ""
}

// ResolveDestinations expands each configured destination AE title
// against the request's data dataset, enabling per-patient or per-study
// routing (spec.md §4.2: "destinations are resolved with the data dataset
// available"). Placeholders take the form {TagName} for the handful of
// routing-relevant tags this proxy understands.
func (r Rule) ResolveDestinations(data *dicom.Dataset) []string {
	out := make([]string, 0, len(r.DestinationAETs))
	for _, dest := range r.DestinationAETs {
		out = append(out, substitutePlaceholders(dest, data))
	}
	return out
}

var placeholderTags = map[string]dicom.Tag{
	"PerformedProcedureStepID": dicom.TagPerformedProcedureStepID,
	"SOPInstanceUID":           dicom.TagSOPInstanceUID,
}

func substitutePlaceholders(s string, data *dicom.Dataset) string {
	if !strings.Contains(s, "{") {
		return s
	}
	out := s
	for name, tag := range placeholderTags {
		placeholder := "{" + name + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, data.GetString(tag))
		}
	}
	return out
}
