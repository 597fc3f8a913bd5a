package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
	bolt "go.etcd.io/bbolt"
)

// snippetChars is the length of the text excerpt returned with each hit.
const snippetChars = 240

// DefaultOpenTimeout bounds the wait for the on-disk index lock held by another process.
const DefaultOpenTimeout = time.Second

// ErrIndexLocked is returned when another process holds the index open.
var ErrIndexLocked = errors.New("keyword index is locked by another process")

// Option configures NewBleveIndex.
type Option func(*openConfig)

type openConfig struct {
	timeout time.Duration
}

// WithOpenTimeout sets how long to wait for the index lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *openConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// BleveIndex implements ChunkIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

type chunkDoc struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	URL        string `json:"url"`
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a re-index.
// An on-disk index held by another process fails with ErrIndexLocked after the open timeout.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	oc := openConfig{timeout: DefaultOpenTimeout}
	for _, opt := range opts {
		opt(&oc)
	}
	runtimeConfig := map[string]interface{}{"bolt_timeout": oc.timeout.String()}

	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so terms match as typed.
	textField.Analyzer = standard.Name
	textField.Store = true
	docMapping.AddFieldMappingsAt("text", textField)

	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = keywordanalyzer.Name
	sourceField.Store = true
	docMapping.AddFieldMappingsAt("source", sourceField)

	urlField := bleve.NewTextFieldMapping()
	urlField.Analyzer = keywordanalyzer.Name
	urlField.Store = true
	urlField.Index = false
	docMapping.AddFieldMappingsAt("url", urlField)

	ordinalField := bleve.NewNumericFieldMapping()
	ordinalField.Store = true
	docMapping.AddFieldMappingsAt("chunk_index", ordinalField)

	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.OpenUsing(path, runtimeConfig)
		if openErr != nil {
			if isLockTimeout(openErr) {
				return nil, fmt.Errorf("%w: %s", ErrIndexLocked, path)
			}
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.NewUsing(path, im, bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, runtimeConfig)
	if err != nil {
		if isLockTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexLocked, path)
		}
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// isLockTimeout reports whether err is bolt's lock timeout on the index root file.
func isLockTimeout(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}

// Index stores a chunk under id, replacing any previous version.
func (b *BleveIndex) Index(ctx context.Context, id string, meta models.RecordMetadata) error {
	return b.index.Index(id, chunkDoc{
		Text:       meta.Text,
		Source:     meta.Source,
		ChunkIndex: meta.ChunkIndex,
		URL:        meta.URL,
	})
}

// Search runs a match query over chunk text and returns up to limit hits by descending score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]models.KeywordHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("keyword query cannot be empty: %w", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}
	if opts == nil {
		opts = &SearchOptions{}
	}

	var q blevequery.Query
	if opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		q = buildFuzzyQuery(query, fuzziness, "text")
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("text")
		q = mq
	}
	if opts.Source != "" {
		tq := bleve.NewTermQuery(opts.Source)
		tq.SetField("source")
		q = bleve.NewConjunctionQuery(q, tq)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"text", "source", "chunk_index"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]models.KeywordHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		kh := models.KeywordHit{ID: hit.ID, Score: hit.Score}
		if s, ok := hit.Fields["source"].(string); ok {
			kh.Source = s
		}
		if n, ok := hit.Fields["chunk_index"].(float64); ok {
			kh.ChunkIndex = int(n)
		}
		if s, ok := hit.Fields["text"].(string); ok {
			kh.Snippet = utils.Truncate(strings.Join(strings.Fields(s), " "), snippetChars)
		}
		hits = append(hits, kh)
	}
	return hits, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term, restricted to field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a chunk from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
