package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/generation"
	"github.com/hyperjump/tanya/internal/metrics"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeStore struct {
	matches []models.RetrievalMatch
	err     error
	k       int
}

func (f *fakeStore) Upsert(ctx context.Context, records []models.IndexedRecord) error { return nil }

func (f *fakeStore) Query(ctx context.Context, vec []float32, k int) ([]models.RetrievalMatch, error) {
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.RetrievalMatch(nil), f.matches...), nil
}

func (f *fakeStore) Size(ctx context.Context) (int, error) { return len(f.matches), nil }

func (f *fakeStore) Close() error { return nil }

type fakeGenerator struct {
	reply  string
	err    error
	system string
	user   string
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func match(id, source string, score float64, text string) models.RetrievalMatch {
	return models.RetrievalMatch{ID: id, Score: score, Metadata: models.RecordMetadata{Text: text, Source: source, URL: "https://example.org/" + source}}
}

func rankedMatches() []models.RetrievalMatch {
	return []models.RetrievalMatch{
		match("a_chunk_0", "a.pdf", 0.9, "Grants close in March."),
		match("b_chunk_3", "b.pdf", 0.8, "Applications need two referees."),
		match("c_chunk_1", "c.pdf", 0.7, "Funding is paid quarterly."),
	}
}

func TestEngine_Answer_SourceOrdering(t *testing.T) {
	gen := &fakeGenerator{reply: "Grants close in March [1]."}
	store := &fakeStore{matches: rankedMatches()}
	e := NewEngine(&fakeEmbedder{}, store, gen, 0)

	ans, err := e.Answer(context.Background(), "  When do grants close?  ")
	require.NoError(t, err)

	assert.Equal(t, "Grants close in March [1].", ans.Answer)
	require.Len(t, ans.Sources, 3)
	for i, want := range []struct {
		doc   string
		score float64
	}{{"a.pdf", 0.9}, {"b.pdf", 0.8}, {"c.pdf", 0.7}} {
		assert.Equal(t, i+1, ans.Sources[i].Index)
		assert.Equal(t, want.doc, ans.Sources[i].Document)
		assert.InDelta(t, want.score, ans.Sources[i].Score, 1e-9)
		assert.Equal(t, "https://example.org/"+want.doc, ans.Sources[i].URL)
	}

	assert.Equal(t, DefaultTopK, store.k)
	assert.Equal(t, SystemPrompt, gen.system)
	assert.Contains(t, gen.user, "[1] (a.pdf)\nGrants close in March.")
	assert.Contains(t, gen.user, "[3] (c.pdf)\nFunding is paid quarterly.")
	assert.True(t, strings.HasSuffix(gen.user, "Question: When do grants close?"))
	assert.Less(t, strings.Index(gen.user, "[1]"), strings.Index(gen.user, "[2]"))
	assert.Less(t, strings.Index(gen.user, "[2]"), strings.Index(gen.user, "[3]"))
}

func TestEngine_Answer_ZeroMatches(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	e := NewEngine(&fakeEmbedder{}, &fakeStore{}, gen, 3)

	ans, err := e.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, InsufficientInformation, ans.Answer)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, gen.calls, "generator must not be called without context")
}

func TestEngine_Answer_EmptyQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	e := NewEngine(emb, &fakeStore{}, &fakeGenerator{}, 3)

	_, err := e.Answer(context.Background(), " \t\n")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Zero(t, emb.calls)
}

func TestEngine_Answer_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		emb     *fakeEmbedder
		store   *fakeStore
		gen     generation.Generator
		wantErr error
	}{
		{
			name:    "embedding failure",
			emb:     &fakeEmbedder{err: errors.New("connection refused")},
			store:   &fakeStore{matches: rankedMatches()},
			gen:     &fakeGenerator{reply: "x"},
			wantErr: models.ErrEmbedding,
		},
		{
			name:    "search failure",
			emb:     &fakeEmbedder{},
			store:   &fakeStore{err: errors.New("timeout")},
			gen:     &fakeGenerator{reply: "x"},
			wantErr: models.ErrSearch,
		},
		{
			name:    "generation failure",
			emb:     &fakeEmbedder{},
			store:   &fakeStore{matches: rankedMatches()},
			gen:     &fakeGenerator{err: errors.New("status 500")},
			wantErr: models.ErrGeneration,
		},
		{
			name:    "generator not configured",
			emb:     &fakeEmbedder{},
			store:   &fakeStore{matches: rankedMatches()},
			gen:     generation.Unavailable{Reason: "CHAT_API_KEY is not set"},
			wantErr: models.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.emb, tt.store, tt.gen, 3)
			ans, err := e.Answer(context.Background(), "question")
			assert.Nil(t, ans, "no partial answer or sources on failure")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEngine_MinScore(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	e := NewEngine(&fakeEmbedder{}, &fakeStore{matches: rankedMatches()}, gen, 5, WithMinScore(0.75))

	ans, err := e.Answer(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "b.pdf", ans.Sources[1].Document)

	e = NewEngine(&fakeEmbedder{}, &fakeStore{matches: rankedMatches()}, gen, 5, WithMinScore(0.95))
	ans, err = e.Answer(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, InsufficientInformation, ans.Answer)
}

func TestEngine_WithMemoryStore(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(64)
	store, err := vector.NewMemoryStore(64, "")
	require.NoError(t, err)

	texts := map[string]string{
		"grants_chunk_0":  "Grant applications close at the end of March each year.",
		"parking_chunk_0": "Staff parking permits are issued by the facilities office.",
	}
	var records []models.IndexedRecord
	for id, text := range texts {
		v, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		source := strings.SplitN(id, "_", 2)[0] + ".pdf"
		records = append(records, models.IndexedRecord{ID: id, Values: v, Metadata: models.RecordMetadata{Text: text, Source: source}})
	}
	require.NoError(t, store.Upsert(ctx, records))

	gen := &fakeGenerator{reply: "They close in March [1]."}
	m := metrics.New()
	e := NewEngine(emb, store, gen, 1, WithMetrics(m))
	ans, err := e.Answer(ctx, "when do grant applications close")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "grants.pdf", ans.Sources[0].Document)
	assert.Contains(t, gen.user, "[1] (grants.pdf)")
}

func TestBuildContext_Empty(t *testing.T) {
	text, sources := BuildContext(nil)
	assert.Empty(t, text)
	assert.Empty(t, sources)
}
