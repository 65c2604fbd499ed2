package forwardrule

import (
	"sync"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
)

// Match pairs a matched rule with its resolved destination AE titles for
// one request.
type Match struct {
	Rule         Rule
	Destinations []string
}

// Evaluator yields the ordered list of matched rules and their resolved
// destinations for a request (spec.md §4.2).
type Evaluator interface {
	Evaluate(callingAET, calledAET, sopClassUID string, kind dimse.Kind, data *dicom.Dataset) []Match
}

// ConfigEvaluator evaluates a configuration-supplied, priority-ordered
// rule set. It is the concrete stand-in for the "configuration store"
// external collaborator named in spec.md §6.
type ConfigEvaluator struct {
	mu    sync.RWMutex
	rules []Rule
}

func NewConfigEvaluator(rules []Rule) *ConfigEvaluator {
	return &ConfigEvaluator{rules: rules}
}

// Reload atomically replaces the rule set, e.g. on a config-reload admin
// request.
func (e *ConfigEvaluator) Reload(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

// Rules returns a copy of the currently loaded rule set, in evaluated
// order, for admin introspection (GET /api/v1/forward-rules).
func (e *ConfigEvaluator) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *ConfigEvaluator) Evaluate(callingAET, calledAET, sopClassUID string, kind dimse.Kind, data *dicom.Dataset) []Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matches []Match
	for _, rule := range e.rules {
		if !rule.Matches(callingAET, calledAET, sopClassUID, kind) {
			continue
		}
		dests := rule.ResolveDestinations(data)
		if len(dests) == 0 {
			continue
		}
		matches = append(matches, Match{Rule: rule, Destinations: dests})
	}
	return matches
}
