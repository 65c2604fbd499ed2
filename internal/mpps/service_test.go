package mpps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
	"github.com/dcmrelay/mpps-proxy/internal/spool"
	"github.com/dcmrelay/mpps-proxy/internal/template"
	"github.com/dcmrelay/mpps-proxy/internal/transform"
)

type stubAssociation struct {
	calling, called string
	written         []writtenDIMSE
	writeErr        error
}

type writtenDIMSE struct {
	kind    dimse.Kind
	command *dicom.Dataset
	data    *dicom.Dataset
}

func (s *stubAssociation) CallingAET() string { return s.calling }
func (s *stubAssociation) CalledAET() string  { return s.called }
func (s *stubAssociation) WriteDIMSE(pc dimse.PresentationContext, kind dimse.Kind, command, data *dicom.Dataset) error {
	s.written = append(s.written, writtenDIMSE{kind: kind, command: command, data: data})
	return s.writeErr
}

type stubUpstream struct {
	ncreateCalls int
	nsetCalls    int
}

func (u *stubUpstream) NCreate(cuid, iuid string, data *dicom.Dataset, tsuid string, sink dimse.ResponseSink) error {
	u.ncreateCalls++
	sink.OnResponse(dicom.NewDataset(), nil)
	return nil
}

func (u *stubUpstream) NSet(cuid, iuid string, data *dicom.Dataset, tsuid string, sink dimse.ResponseSink) error {
	u.nsetCalls++
	sink.OnResponse(dicom.NewDataset(), nil)
	return nil
}

func newService(t *testing.T, rules []forwardrule.Rule) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		CStoreDir:  root + "/cstore",
		NCreateDir: root + "/ncreate",
		NSetDir:    root + "/nset",
		DoseSrDir:  root + "/dosesr",
	}
	eval := forwardrule.NewConfigEvaluator(rules)
	writer := spool.NewWriter(nil)
	templates := template.NewCache(noopSource{}, nil)
	transformer := transform.NewTransformer(writer, templates)
	return NewService(dirs, eval, writer, transformer), root
}

type noopSource struct{}

func (noopSource) Fetch(ctx context.Context, uri string) ([]byte, error) { return []byte(""), nil }

func ncreateCommand(cuid, iuid string) *dicom.Dataset {
	cmd := dicom.NewDataset()
	cmd.Set(dicom.TagAffectedSOPClassUID, "UI", cuid)
	cmd.Set(dicom.TagAffectedSOPInstanceUID, "UI", iuid)
	return cmd
}

func TestOnDimseRQSpoolsAndRespondsWhenRuleMatches(t *testing.T) {
	svc, root := newService(t, []forwardrule.Rule{
		{Name: "to-archive", DestinationAETs: []string{"ARCHIVE"}},
	})

	assoc := &stubAssociation{calling: "MOD1", called: "PROXY"}
	session := &dimse.Session{Association: assoc}
	cmd := ncreateCommand("1.2.840.10008.3.1.2.3.3", "1.2.3.4")
	data := dicom.NewDataset()

	err := svc.OnDimseRQ(context.Background(), session, dimse.PresentationContext{}, dimse.NCreateRQ, cmd, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assoc.written) != 1 || assoc.written[0].kind != dimse.NCreateRSP {
		t.Fatalf("expected one N-CREATE-RSP written, got %v", assoc.written)
	}

	if _, err := readDirOrFail(t, root+"/ncreate/ARCHIVE"); err != nil {
		t.Fatalf("expected spooled entry under ncreate/ARCHIVE: %v", err)
	}
}

func TestOnDimseRQWithNoMatchingRuleIsProcessingFailure(t *testing.T) {
	svc, _ := newService(t, nil)

	assoc := &stubAssociation{calling: "MOD1", called: "PROXY"}
	session := &dimse.Session{Association: assoc}
	cmd := ncreateCommand("1.2.840.10008.3.1.2.3.3", "1.2.3.4")

	err := svc.OnDimseRQ(context.Background(), session, dimse.PresentationContext{}, dimse.NCreateRQ, cmd, dicom.NewDataset())
	if err == nil {
		t.Fatal("expected an error when no forward rule matches")
	}
	var svcErr *dimse.ServiceError
	if !asServiceError(err, &svcErr) || svcErr.Kind != dimse.KindProcessingFailure {
		t.Errorf("expected a ProcessingFailure ServiceError, got %v", err)
	}
}

func TestOnDimseRQAbortsFanOutOnFirstDestinationFailure(t *testing.T) {
	svc, root := newService(t, []forwardrule.Rule{
		{Name: "two-dests", DestinationAETs: []string{"GOOD", "ALSO-GOOD"}},
	})

	// Make the first destination's spool fail by planting a regular file
	// where its destination directory (<ncreate>/GOOD) would be created.
	badRoot := root + "/ncreate"
	if err := writeConflictingFile(t, badRoot); err != nil {
		t.Fatalf("failed to seed conflicting path: %v", err)
	}

	assoc := &stubAssociation{calling: "MOD1", called: "PROXY"}
	session := &dimse.Session{Association: assoc}
	cmd := ncreateCommand("1.2.840.10008.3.1.2.3.3", "1.2.3.4")

	err := svc.OnDimseRQ(context.Background(), session, dimse.PresentationContext{}, dimse.NCreateRQ, cmd, dicom.NewDataset())
	if err == nil {
		t.Fatal("expected the fan-out to abort with an error")
	}
	if len(assoc.written) != 0 {
		t.Errorf("expected no response written when fan-out fails, got %v", assoc.written)
	}
}

func TestOnDimseRQWithUpstreamForwardsLiveAndNeverSpools(t *testing.T) {
	svc, root := newService(t, []forwardrule.Rule{
		{Name: "to-archive", DestinationAETs: []string{"ARCHIVE"}},
	})

	upstream := &stubUpstream{}
	assoc := &stubAssociation{calling: "MOD1", called: "PROXY"}
	session := &dimse.Session{Association: assoc, Upstream: upstream}
	cmd := ncreateCommand("1.2.840.10008.3.1.2.3.3", "1.2.3.4")

	err := svc.OnDimseRQ(context.Background(), session, dimse.PresentationContext{}, dimse.NCreateRQ, cmd, dicom.NewDataset())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upstream.ncreateCalls != 1 {
		t.Errorf("expected exactly one upstream N-CREATE, got %d", upstream.ncreateCalls)
	}
	if len(assoc.written) != 1 || assoc.written[0].kind != dimse.NCreateRSP {
		t.Fatalf("expected the upstream response relayed back, got %v", assoc.written)
	}
	if entries, _ := readDirOrFail(t, root+"/ncreate/ARCHIVE"); len(entries) != 0 {
		t.Errorf("expected no spool entries written during live forwarding, got %v", entries)
	}
}

func asServiceError(err error, target **dimse.ServiceError) bool {
	se, ok := err.(*dimse.ServiceError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func readDirOrFail(t *testing.T, dir string) ([]os.DirEntry, error) {
	t.Helper()
	return os.ReadDir(dir)
}

// writeConflictingFile plants a regular file at <root>/GOOD so that a
// subsequent spool.Writer.Create with baseDir root and destinationAET GOOD
// fails: os.MkdirAll refuses to create a directory where a file already
// exists with that name.
func writeConflictingFile(t *testing.T, root string) error {
	t.Helper()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "GOOD"), []byte("not a directory"), 0o644)
}
