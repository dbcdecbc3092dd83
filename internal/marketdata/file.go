package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// FileProvider serves a universe snapshot stored as YAML:
//
//	as_of: 2026-01-02T21:00:00Z
//	source: snapshot
//	quotes:
//	  - symbol: AAPL
//	    price: 191.2
//	    indicators: {rsi: 61.5}
//
// The file is read once and reused; Reload picks up changes.
type FileProvider struct {
	path string

	mu       sync.RWMutex
	universe *contracts.Universe
}

// NewFileProvider loads the snapshot at path
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStaticProvider serves an in-memory universe
func NewStaticProvider(u *contracts.Universe) *FileProvider {
	return &FileProvider{path: "", universe: u.Clone()}
}

// Reload re-reads the snapshot file
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	u, err := ParseSnapshot(data)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.universe = u
	p.mu.Unlock()
	return nil
}

// ParseSnapshot decodes a YAML snapshot strictly
func ParseSnapshot(data []byte) (*contracts.Universe, error) {
	var u contracts.Universe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&u); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if u.Source == "" {
		u.Source = "snapshot"
	}
	return &u, nil
}

// FetchUniverse returns a copy of the snapshot, truncated to q.Limit
func (p *FileProvider) FetchUniverse(ctx context.Context, q contracts.UniverseQuery) (*contracts.Universe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	u := p.universe.Clone()
	p.mu.RUnlock()

	if u.Len() == 0 {
		return nil, fmt.Errorf("%w: snapshot is empty", contracts.ErrDataUnavailable)
	}
	if q.Limit > 0 && len(u.Quotes) > q.Limit {
		u.Quotes = u.Quotes[:q.Limit]
	}
	return u, nil
}

// FetchQuotes looks symbols up in the snapshot
func (p *FileProvider) FetchQuotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	out := make(map[string]contracts.Quote, len(symbols))
	if p.universe == nil {
		return out, nil
	}
	for _, q := range p.universe.Clone().Quotes {
		if want[q.Symbol] {
			out[q.Symbol] = q
		}
	}
	return out, nil
}

// Symbols lists the snapshot's symbols in order
func (p *FileProvider) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, p.universe.Len())
	if p.universe == nil {
		return out
	}
	for _, q := range p.universe.Quotes {
		out = append(out, q.Symbol)
	}
	sort.Strings(out)
	return out
}
