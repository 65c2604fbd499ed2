// Package template implements the process-wide compiled-template cache
// described in spec.md §4.4/§9 ("shared mutable template cache... a
// concurrent mapping from URI to compiled template, with
// reload-invalidation via generation counter"). text/template stands in
// for the original's XSLT engine: no XSLT or general tree-transform
// library appears anywhere in the example pack, and text/template's
// named-parameter substitution model is the closest stdlib analogue to
// the three transform parameters named in spec.md §4.4.2.
package template

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/dcmrelay/mpps-proxy/internal/cache"
	"github.com/rs/zerolog/log"
)

// sourceCacheTTL bounds how long fetched template bytes are trusted
// before Fetch is called again; MemoryCache treats a zero TTL as
// immediate expiry, so this must be a real duration rather than 0.
const sourceCacheTTL = 24 * time.Hour

// Source fetches the raw template definition bytes for a URI. The
// concrete implementation is a narrow stand-in for the configuration
// store / template repository named as an external collaborator in
// spec.md §6; this package ships a FileSource reading from local disk,
// which is enough for the `.xsl`/`.tmpl` URIs used in the test suite and
// in operator-supplied configuration.
type Source interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Cache is the process-wide compiled-template cache. Compiled templates
// are keyed by (uri, generation); bumping the generation (on config
// reload) invalidates every previously compiled template without an
// explicit walk, matching the "generation counter" invalidation strategy
// named in spec.md §9.
type Cache struct {
	source Source
	bytes  cache.Cache // fetched source bytes, separate from compiled templates (SPEC_FULL.md §3 TemplateSource)

	mu         sync.RWMutex
	generation uint64
	compiled   map[string]*template.Template
}

func NewCache(source Source, bytesCache cache.Cache) *Cache {
	return &Cache{
		source:   source,
		bytes:    bytesCache,
		compiled: make(map[string]*template.Template),
	}
}

// Reload bumps the generation counter, invalidating every compiled
// template currently held, and clears the fetched-bytes cache entries so
// the next Get fetches the template source again.
func (c *Cache) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.compiled = make(map[string]*template.Template)
	if c.bytes != nil {
		if err := c.bytes.Clear(context.Background(), sourceCacheKey("")+"*"); err != nil {
			log.Warn().Err(err).Msg("template: failed to clear cached source bytes")
		}
	}
	log.Info().Uint64("generation", c.generation).Msg("template: cache invalidated")
}

func (c *Cache) key(uri string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%d:%s", c.generation, uri)
}

// Get returns the compiled template for uri, compiling (and caching) it
// on first use or after a Reload.
func (c *Cache) Get(ctx context.Context, uri string) (*template.Template, error) {
	k := c.key(uri)

	c.mu.RLock()
	if t, ok := c.compiled[k]; ok {
		c.mu.RUnlock()
		return t, nil
	}
	c.mu.RUnlock()

	src, err := c.fetchSource(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template source %s: %w", uri, err)
	}

	t, err := template.New(uri).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to compile template %s: %w", uri, err)
	}

	c.mu.Lock()
	c.compiled[k] = t
	c.mu.Unlock()

	log.Debug().Str("uri", uri).Msg("template: compiled")
	return t, nil
}

func (c *Cache) fetchSource(ctx context.Context, uri string) ([]byte, error) {
	if c.bytes != nil {
		if b, err := c.bytes.Get(ctx, sourceCacheKey(uri)); err == nil {
			return b, nil
		}
	}

	b, err := c.source.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	if c.bytes != nil {
		if err := c.bytes.Set(ctx, sourceCacheKey(uri), b, sourceCacheTTL); err != nil {
			log.Warn().Err(err).Str("uri", uri).Msg("template: failed to cache source bytes")
		}
	}
	return b, nil
}

func sourceCacheKey(uri string) string {
	return "template-source:" + strings.TrimSpace(uri)
}
