package template

import (
	"context"
	"errors"
	"testing"

	"github.com/dcmrelay/mpps-proxy/internal/cache"
)

type stubSource struct {
	fetches int
	body    string
	err     error
}

func (s *stubSource) Fetch(context.Context, string) ([]byte, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

func TestGetCompilesOnceAndReusesCompiled(t *testing.T) {
	src := &stubSource{body: "{{.IrradiationEventUID}}"}
	c := NewCache(src, cache.NewMemoryCache())

	if _, err := c.Get(context.Background(), "t.xsl"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(context.Background(), "t.xsl"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if src.fetches != 1 {
		t.Errorf("expected source fetched once with byte cache hit, got %d fetches", src.fetches)
	}
}

func TestReloadInvalidatesCompiledTemplates(t *testing.T) {
	src := &stubSource{body: "{{.DeviceObserverUID}}"}
	c := NewCache(src, cache.NewMemoryCache())

	if _, err := c.Get(context.Background(), "t.xsl"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Reload()
	if _, err := c.Get(context.Background(), "t.xsl"); err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if src.fetches != 2 {
		t.Errorf("expected a second fetch after reload bumped the generation, got %d", src.fetches)
	}
}

func TestGetSurfacesFetchError(t *testing.T) {
	src := &stubSource{err: errors.New("not found")}
	c := NewCache(src, cache.NewMemoryCache())

	if _, err := c.Get(context.Background(), "missing.xsl"); err == nil {
		t.Error("expected error for unfetchable template")
	}
}

func TestGetSurfacesParseError(t *testing.T) {
	src := &stubSource{body: "{{.Unterminated"}
	c := NewCache(src, cache.NewMemoryCache())

	if _, err := c.Get(context.Background(), "bad.xsl"); err == nil {
		t.Error("expected parse error for malformed template")
	}
}
