package forwardrule

import (
	"testing"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
)

func TestEvaluatePreservesPriorityOrder(t *testing.T) {
	eval := NewConfigEvaluator([]Rule{
		{Name: "low", DestinationAETs: []string{"LOW"}},
		{Name: "high", DestinationAETs: []string{"HIGH"}},
	})

	matches := eval.Evaluate("MOD1", "PROXY", "1.2.3", dimse.NCreateRQ, dicom.NewDataset())
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Rule.Name != "low" || matches[1].Rule.Name != "high" {
		t.Errorf("expected configured order preserved, got %q then %q", matches[0].Rule.Name, matches[1].Rule.Name)
	}
}

func TestEvaluateFiltersByPredicate(t *testing.T) {
	eval := NewConfigEvaluator([]Rule{
		{Name: "mod1-only", CallingAETs: []string{"MOD1"}, DestinationAETs: []string{"A"}},
	})

	if m := eval.Evaluate("MOD2", "PROXY", "", dimse.NCreateRQ, dicom.NewDataset()); len(m) != 0 {
		t.Errorf("expected no match for different calling AET, got %v", m)
	}
	if m := eval.Evaluate("MOD1", "PROXY", "", dimse.NCreateRQ, dicom.NewDataset()); len(m) != 1 {
		t.Errorf("expected a match, got %v", m)
	}
}

func TestEmptyDestinationListExcludesRule(t *testing.T) {
	eval := NewConfigEvaluator([]Rule{{Name: "no-dests"}})
	matches := eval.Evaluate("MOD1", "PROXY", "", dimse.NCreateRQ, dicom.NewDataset())
	if len(matches) != 0 {
		t.Errorf("expected empty-destination rule to be excluded, got %v", matches)
	}
}

func TestResolveDestinationsSubstitutesPlaceholder(t *testing.T) {
	rule := Rule{DestinationAETs: []string{"ARCHIVE-{SOPInstanceUID}"}}
	data := dicom.NewDataset()
	data.Set(dicom.TagSOPInstanceUID, "UI", "1.2.3")

	got := rule.ResolveDestinations(data)
	if want := "ARCHIVE-1.2.3"; len(got) != 1 || got[0] != want {
		t.Errorf("got %v, want [%s]", got, want)
	}
}

func TestReloadReplacesRuleSet(t *testing.T) {
	eval := NewConfigEvaluator([]Rule{{Name: "old", DestinationAETs: []string{"A"}}})
	eval.Reload([]Rule{{Name: "new", DestinationAETs: []string{"B"}}})

	matches := eval.Evaluate("M", "P", "", dimse.NCreateRQ, dicom.NewDataset())
	if len(matches) != 1 || matches[0].Rule.Name != "new" {
		t.Errorf("expected reloaded rule set, got %v", matches)
	}
}
