// Package loader turns source content references into ordered text
// documents. Format parsing is the boundary of the engine: loaders are
// dispatched by source type, and formats without a registered loader fail
// that source rather than silently degrading.
package loader

import (
	"context"
	"fmt"
	"maps"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// Loader parses fetched source bytes into ordered documents.
type Loader interface {
	Load(ctx context.Context, source domain.Source, content []byte) ([]domain.Document, error)
}

// ContentFetcher resolves a source's opaque content reference to raw bytes.
type ContentFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Registry dispatches loading by source type. txt and the generic file
// fallback parse as plain text out of the box; csv gets the row loader;
// pdf and docx must be registered by the host or their sources fail with a
// loader error.
type Registry struct {
	fetcher ContentFetcher
	loaders map[domain.SourceType]Loader
}

func NewRegistry(fetcher ContentFetcher) *Registry {
	r := &Registry{
		fetcher: fetcher,
		loaders: make(map[domain.SourceType]Loader),
	}
	r.Register(domain.SourceTypeTXT, TextLoader{})
	r.Register(domain.SourceTypeFile, TextLoader{})
	r.Register(domain.SourceTypeCSV, CSVLoader{})
	return r
}

func (r *Registry) Register(t domain.SourceType, l Loader) {
	r.loaders[t] = l
}

// Load fetches the source's content and parses it with the loader for its
// type. Every document carries the source's filename and type in its
// metadata on top of whatever the loader contributes.
func (r *Registry) Load(ctx context.Context, source domain.Source) ([]domain.Document, error) {
	l, ok := r.loaders[source.Type]
	if !ok {
		return nil, domain.NewLoaderError(source.Filename,
			fmt.Errorf("no loader registered for source type %q", source.Type))
	}

	content, err := r.fetcher.Fetch(ctx, source.Content)
	if err != nil {
		return nil, domain.NewLoaderError(source.Filename, err)
	}

	docs, err := l.Load(ctx, source, content)
	if err != nil {
		return nil, domain.NewLoaderError(source.Filename, err)
	}

	for i := range docs {
		meta := maps.Clone(docs[i].Metadata)
		if meta == nil {
			meta = make(map[string]any, 2)
		}
		meta["filename"] = source.Filename
		meta["type"] = string(source.Type)
		docs[i].Metadata = meta
	}
	return docs, nil
}
