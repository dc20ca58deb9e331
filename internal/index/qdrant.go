package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docpack-go/internal/rag"
)

// Payload field names stored with every Qdrant point.
const (
	fieldPackKey = "pack_key"
	fieldOffset  = "offset"
	fieldTitle   = "title"
	fieldURL     = "url"
	fieldText    = "text"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection shared by all packs.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBackend implements Backend on a single Qdrant collection. Points
// carry their pack key in the payload and every query filters on it, so one
// collection holds any number of packs.
type QdrantBackend struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this backend.
	cfg *QdrantConfig

	// mu guards packs.
	mu sync.Mutex

	// packs holds the per-key offset counters.
	packs map[string]*qdrantPack
}

// qdrantPack serialises appends for one key and tracks its next offset.
type qdrantPack struct {
	mu     sync.Mutex
	loaded bool
	next   uint64
}

// NewQdrantBackend creates a QdrantBackend, ensuring the target collection
// exists (creating it with dot-product distance if necessary).
func NewQdrantBackend(ctx context.Context, cfg *QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "docpack"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	b := &QdrantBackend{client: client, cfg: cfg, packs: make(map[string]*qdrantPack)}
	if err := b.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}

// Client returns the underlying client, used by readiness probes.
func (b *QdrantBackend) Client() *qdrant.Client { return b.client }

// ensureCollection creates the collection and its pack_key payload index if
// they do not already exist.
func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     b.cfg.VectorSize,
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", b.cfg.Collection, err)
	}

	_, err = b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: b.cfg.Collection,
		FieldName:      fieldPackKey,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s: %w", fieldPackKey, err)
	}
	return nil
}

// pack returns the counter state for key, creating it on first access.
func (b *QdrantBackend) pack(key string) *qdrantPack {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.packs[key]
	if !ok {
		p = &qdrantPack{}
		b.packs[key] = p
	}
	return p
}

// Append implements Backend. The upsert waits for Qdrant to apply the batch
// so a subsequent Search observes either none or all of it.
func (b *QdrantBackend) Append(ctx context.Context, key string, vectors [][]float32, docs []rag.Document) error {
	p := b.pack(key)
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		n, err := b.count(ctx, key)
		if err != nil {
			return err
		}
		p.next = n
		p.loaded = true
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		offset := p.next + uint64(i)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(key, offset)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldPackKey: key,
				fieldOffset:  int64(offset),
				fieldTitle:   doc.Title,
				fieldURL:     doc.URL,
				fieldText:    doc.Text,
			}),
		})
	}

	wait := true
	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	p.next += uint64(len(docs))
	return nil
}

// Search implements Backend.
func (b *QdrantBackend) Search(ctx context.Context, key string, query []float32, topN int) ([]Match, error) {
	limit := uint64(topN)
	results, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         packFilter(key),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{Score: r.Score}
		if p := r.Payload; p != nil {
			m.Offset = int(p[fieldOffset].GetIntegerValue())
			m.Document = rag.Document{
				Title: p[fieldTitle].GetStringValue(),
				URL:   p[fieldURL].GetStringValue(),
				Text:  p[fieldText].GetStringValue(),
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Stats implements Backend. Vectors and metadata live in the same point, so
// both counts are equal.
func (b *QdrantBackend) Stats(ctx context.Context, key string) (Stats, error) {
	n, err := b.count(ctx, key)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Vectors: int(n), Metadata: int(n)}, nil
}

// count returns the exact number of points stored for key.
func (b *QdrantBackend) count(ctx context.Context, key string) (uint64, error) {
	exact := true
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.cfg.Collection,
		Filter:         packFilter(key),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// packFilter matches the points of a single pack.
func packFilter(key string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldPackKey, key)},
	}
}

// pointID derives a stable UUID for the document at offset within key.
func pointID(key string, offset uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "docpack:%s#%d", key, offset)).String()
}
