package config

import (
	"fmt"
	"os"

	"github.com/dcmrelay/mpps-proxy/internal/dimse"
	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
	"github.com/dcmrelay/mpps-proxy/internal/mpps"
	yaml "go.yaml.in/yaml/v2"
)

// ForwardRuleConfig is the YAML shape of a single forward rule (spec.md
// §6 "Configuration file").
type ForwardRuleConfig struct {
	Name                   string   `yaml:"name"`
	CallingAETs            []string `yaml:"callingAETs"`
	CalledAETs             []string `yaml:"calledAETs"`
	SOPClasses             []string `yaml:"sopClasses"`
	DimseKinds             []string `yaml:"dimseKinds"`
	DestinationAETs        []string `yaml:"destinationAETs"`
	Mpps2DoseSrTemplateURI string   `yaml:"mpps2DoseSrTemplateURI"`
	UseCallingAET          string   `yaml:"useCallingAET"`
}

// SpoolDirsConfig is the six spool root paths spec.md §6 names for a
// Proxy AE.
type SpoolDirsConfig struct {
	CStoreDir  string `yaml:"cstoreDir"`
	NCreateDir string `yaml:"ncreateDir"`
	NSetDir    string `yaml:"nsetDir"`
	DoseSrDir  string `yaml:"doseSrDir"`
	NActionDir string `yaml:"nactionDir,omitempty"`
	NEventDir  string `yaml:"neventDir,omitempty"`
}

// ProxyAEConfig is one Proxy AE's full configuration: its listen identity,
// spool roots, and ordered forward rules.
type ProxyAEConfig struct {
	AETitle      string              `yaml:"aeTitle"`
	ListenPort   int                 `yaml:"listenPort"`
	SpoolDirs    SpoolDirsConfig     `yaml:"spoolDirs"`
	ForwardRules []ForwardRuleConfig `yaml:"forwardRules"`
}

type proxyAEDocument struct {
	ProxyAEs []ProxyAEConfig `yaml:"proxyAEs"`
}

// LoadProxyAEs reads and parses the Proxy AE / ForwardRule YAML document at
// path. Grounded on original_source/dcm4chee-proxy-service's XML-based
// ProxyAEExtension/ForwardRule config, re-expressed in YAML (the ambient
// settings in Config come from the environment instead).
func LoadProxyAEs(path string) ([]ProxyAEConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read proxy AE config %s: %w", path, err)
	}

	var doc proxyAEDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("config: failed to parse proxy AE config %s: %w", path, err)
	}

	for i, ae := range doc.ProxyAEs {
		if ae.AETitle == "" {
			return nil, fmt.Errorf("config: proxy AE at index %d is missing aeTitle", i)
		}
	}

	return doc.ProxyAEs, nil
}

// Rules converts the YAML-shaped forward rules into the evaluator's Rule
// type, resolving each dimseKinds string against the DIMSE kind constants.
func (ae ProxyAEConfig) Rules() ([]forwardrule.Rule, error) {
	rules := make([]forwardrule.Rule, 0, len(ae.ForwardRules))
	for _, rc := range ae.ForwardRules {
		kinds, err := parseDimseKinds(rc.DimseKinds)
		if err != nil {
			return nil, fmt.Errorf("config: proxy AE %s rule %s: %w", ae.AETitle, rc.Name, err)
		}
		rules = append(rules, forwardrule.Rule{
			Name:                   rc.Name,
			CallingAETs:            rc.CallingAETs,
			CalledAETs:             rc.CalledAETs,
			SOPClasses:             rc.SOPClasses,
			DimseKinds:             kinds,
			DestinationAETs:        rc.DestinationAETs,
			Mpps2DoseSrTemplateURI: rc.Mpps2DoseSrTemplateURI,
			UseCallingAET:          rc.UseCallingAET,
		})
	}
	return rules, nil
}

// Dirs converts the YAML spool-directory block into mpps.Dirs.
func (ae ProxyAEConfig) Dirs() mpps.Dirs {
	return mpps.Dirs{
		CStoreDir:  ae.SpoolDirs.CStoreDir,
		NCreateDir: ae.SpoolDirs.NCreateDir,
		NSetDir:    ae.SpoolDirs.NSetDir,
		DoseSrDir:  ae.SpoolDirs.DoseSrDir,
		NActionDir: ae.SpoolDirs.NActionDir,
		NEventDir:  ae.SpoolDirs.NEventDir,
	}
}

func parseDimseKinds(values []string) ([]dimse.Kind, error) {
	if len(values) == 0 {
		return nil, nil
	}
	kinds := make([]dimse.Kind, 0, len(values))
	for _, v := range values {
		switch v {
		case "N-CREATE-RQ":
			kinds = append(kinds, dimse.NCreateRQ)
		case "N-SET-RQ":
			kinds = append(kinds, dimse.NSetRQ)
		default:
			return nil, fmt.Errorf("unknown dimseKind %q", v)
		}
	}
	return kinds, nil
}
