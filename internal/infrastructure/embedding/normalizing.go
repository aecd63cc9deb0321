package embedding

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type Options struct {
	Dimension   int
	BatchSize   int
	Parallelism int
}

// Normalizing splits input into batches, embeds them concurrently through the backend and
// returns unit-length vectors in input order.
type Normalizing struct {
	backend     ports.Embedder
	dimension   int
	batchSize   int
	parallelism int
}

func NewNormalizing(backend ports.Embedder, opts Options) *Normalizing {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Normalizing{
		backend:     backend,
		dimension:   opts.Dimension,
		batchSize:   opts.BatchSize,
		parallelism: opts.Parallelism,
	}
}

func (n *Normalizing) Dimension() int {
	return n.dimension
}

func (n *Normalizing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.parallelism)
	for start := 0; start < len(texts); start += n.batchSize {
		start, end := start, min(start+n.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := n.backend.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embedding backend returned %d vectors for %d texts", len(vectors), end-start)
			}
			for i, v := range vectors {
				normalized, err := n.normalize(v)
				if err != nil {
					return fmt.Errorf("text %d: %w", start+i, err)
				}
				out[start+i] = normalized
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Normalizing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := n.backend.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return n.normalize(v)
}

// Probe embeds a fixed text and verifies the backend dimension against the configured one.
func (n *Normalizing) Probe(ctx context.Context) error {
	v, err := n.backend.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("embedding probe: %w", err)
	}
	if n.dimension > 0 && len(v) != n.dimension {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embedding probe",
			fmt.Errorf("backend returns %d dimensions, configured %d", len(v), n.dimension),
		)
	}
	return nil
}

func (n *Normalizing) normalize(v []float32) ([]float32, error) {
	if n.dimension > 0 && len(v) != n.dimension {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embedding", fmt.Errorf("got %d dimensions, expected %d", len(v), n.dimension))
	}
	return Normalize(v), nil
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
