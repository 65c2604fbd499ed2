package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dcmrelay/mpps-proxy/internal/dimse"
)

const sampleYAML = `
proxyAEs:
  - aeTitle: PROXY1
    listenPort: 11112
    spoolDirs:
      cstoreDir: /var/spool/proxy1/cstore
      ncreateDir: /var/spool/proxy1/ncreate
      nsetDir: /var/spool/proxy1/nset
      doseSrDir: /var/spool/proxy1/dosesr
    forwardRules:
      - name: to-archive
        destinationAETs: ["ARCHIVE"]
        dimseKinds: ["N-CREATE-RQ", "N-SET-RQ"]
      - name: to-dosesr
        destinationAETs: ["DOSE-ARCHIVE"]
        mpps2DoseSrTemplateURI: file:///templates/mpps2dosesr.xsl
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxy-aes.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProxyAEsParsesSpoolDirsAndRules(t *testing.T) {
	path := writeYAML(t, sampleYAML)

	aes, err := LoadProxyAEs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aes) != 1 {
		t.Fatalf("expected 1 proxy AE, got %d", len(aes))
	}
	ae := aes[0]
	if ae.AETitle != "PROXY1" {
		t.Errorf("expected aeTitle PROXY1, got %q", ae.AETitle)
	}
	if ae.Dirs().CStoreDir != "/var/spool/proxy1/cstore" {
		t.Errorf("unexpected cstore dir: %q", ae.Dirs().CStoreDir)
	}
	if len(ae.ForwardRules) != 2 {
		t.Fatalf("expected 2 forward rules, got %d", len(ae.ForwardRules))
	}
}

func TestRulesConvertsDimseKindStrings(t *testing.T) {
	path := writeYAML(t, sampleYAML)
	aes, err := LoadProxyAEs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rules, err := aes[0].Rules()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules[0].DimseKinds) != 2 || rules[0].DimseKinds[0] != dimse.NCreateRQ {
		t.Errorf("expected both dimse kinds parsed, got %v", rules[0].DimseKinds)
	}
	if !rules[1].IsMpps2DoseSr() {
		t.Error("expected second rule to be a Dose-SR conversion rule")
	}
}

func TestRulesRejectsUnknownDimseKind(t *testing.T) {
	path := writeYAML(t, `
proxyAEs:
  - aeTitle: PROXY1
    forwardRules:
      - name: bad
        dimseKinds: ["C-FIND-RQ"]
`)
	aes, err := LoadProxyAEs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := aes[0].Rules(); err == nil {
		t.Error("expected an error for an unknown dimseKind")
	}
}

func TestLoadProxyAEsRejectsMissingAETitle(t *testing.T) {
	path := writeYAML(t, `
proxyAEs:
  - listenPort: 11112
`)
	if _, err := LoadProxyAEs(path); err == nil {
		t.Error("expected an error for a proxy AE missing aeTitle")
	}
}

func TestLoadProxyAEsSurfacesMissingFile(t *testing.T) {
	if _, err := LoadProxyAEs(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
