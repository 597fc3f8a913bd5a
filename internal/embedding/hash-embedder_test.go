package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/tanya/pkg/utils"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "Revenue grew in the third quarter")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "Revenue grew in the third quarter")
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should give the same embedding")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("embedding should be unit length, norm^2 = %f", norm)
	}
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "board meeting minutes")
	near, _ := e.Embed(ctx, "minutes of the board meeting in march")
	far, _ := e.Embed(ctx, "annual pension fund statement")
	if utils.Cosine(q, near) <= utils.Cosine(q, far) {
		t.Errorf("expected related text to score higher: near=%f far=%f", utils.Cosine(q, near), utils.Cosine(q, far))
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("default dimensions = %d", e.Dimensions())
	}
	v, err := e.Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 1 {
		t.Errorf("wordless text should map to the fixed vector, got v[0]=%f", v[0])
	}
}
