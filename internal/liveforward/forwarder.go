package liveforward

import (
	"context"
	"fmt"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
	"github.com/dcmrelay/mpps-proxy/internal/dimse"
)

// Forwarder implements dimse.UpstreamAssociation over a pooled set of
// outbound associations to a single upstream peer. It does not block on
// the response: issue() registers the sink and returns as soon as the
// request is written, matching spec.md §4.6 exactly.
type Forwarder struct {
	pool *ConnPool
}

func NewForwarder(cfg PoolConfig) *Forwarder {
	return &Forwarder{pool: NewConnPool(cfg)}
}

var _ dimse.UpstreamAssociation = (*Forwarder)(nil)

func (f *Forwarder) NCreate(cuid, iuid string, data *dicom.Dataset, tsuid string, sink dimse.ResponseSink) error {
	return f.issue(commandNCreateRQ, cuid, iuid, data, tsuid, sink)
}

func (f *Forwarder) NSet(cuid, iuid string, data *dicom.Dataset, tsuid string, sink dimse.ResponseSink) error {
	return f.issue(commandNSetRQ, cuid, iuid, data, tsuid, sink)
}

func (f *Forwarder) issue(commandField uint16, cuid, iuid string, data *dicom.Dataset, tsuid string, sink dimse.ResponseSink) error {
	ctx := context.Background()
	conn, err := f.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire upstream connection: %w", err)
	}

	if err := conn.issue(commandField, cuid, iuid, data, tsuid, sink); err != nil {
		conn.Close()
		return fmt.Errorf("failed to issue upstream request: %w", err)
	}

	f.pool.Put(conn)
	return nil
}

func (f *Forwarder) Close() error {
	return f.pool.Close()
}
