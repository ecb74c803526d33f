package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe/meetscribe/internal/log"
)

// fakeClient scripts embedding responses per call.
type fakeClient struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(call int, texts []string) ([][]float32, error)
}

func (f *fakeClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, texts)
	f.mu.Unlock()
	return f.fn(call, texts)
}

// identityVectors returns a dim-sized vector per text whose first value
// encodes the text's numeric suffix, so ordering bugs surface in assertions.
func identityVectors(texts []string, dim int) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		var n float32
		fmt.Sscanf(t, "text-%f", &n)
		v[0] = n
		out[i] = v
	}
	return out
}

func numberedTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	return texts
}

func TestEmbedBatch_OrderAndBatching(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(_ int, texts []string) ([][]float32, error) {
		return identityVectors(texts, 4), nil
	}}
	g, err := New(client, Config{Dimension: 4, BatchSize: 100}, log.NewNop())
	require.NoError(t, err)

	vectors, err := g.EmbedBatch(context.Background(), numberedTexts(250))
	require.NoError(t, err)
	require.Len(t, vectors, 250)

	// Three upstream calls: 100, 100, 50.
	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0], 100)
	assert.Len(t, client.calls[1], 100)
	assert.Len(t, client.calls[2], 50)

	// Output order matches input order across sub-batch boundaries.
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vector %d out of order", i)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(int, []string) ([][]float32, error) {
		return nil, errors.New("should not be called")
	}}
	g, err := New(client, Config{Dimension: 4}, log.NewNop())
	require.NoError(t, err)

	vectors, err := g.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Empty(t, client.calls)
}

func TestEmbedBatch_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(call int, texts []string) ([][]float32, error) {
		if call < 2 {
			return nil, errors.New("upstream unavailable")
		}
		return identityVectors(texts, 4), nil
	}}
	g, err := New(client, Config{Dimension: 4, MaxAttempts: 3}, log.NewNop())
	require.NoError(t, err)

	vectors, err := g.EmbedBatch(context.Background(), numberedTexts(5))
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Len(t, client.calls, 3)
}

func TestEmbedBatch_ExhaustedRetriesReportRange(t *testing.T) {
	t.Parallel()

	// First sub-batch succeeds; the second always fails.
	client := &fakeClient{fn: func(call int, texts []string) ([][]float32, error) {
		if len(texts) == 3 && texts[0] == "text-0" {
			return identityVectors(texts, 4), nil
		}
		return nil, errors.New("quota exceeded")
	}}
	g, err := New(client, Config{Dimension: 4, BatchSize: 3, MaxAttempts: 2}, log.NewNop())
	require.NoError(t, err)

	vectors, err := g.EmbedBatch(context.Background(), numberedTexts(5))
	require.Error(t, err)
	assert.Nil(t, vectors)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 3, batchErr.Start)
	assert.Equal(t, 5, batchErr.End)
}

func TestEmbedBatch_DimensionMismatchIsPermanent(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(_ int, texts []string) ([][]float32, error) {
		return identityVectors(texts, 7), nil // wrong dimension
	}}
	g, err := New(client, Config{Dimension: 4, MaxAttempts: 5}, log.NewNop())
	require.NoError(t, err)

	_, err = g.EmbedBatch(context.Background(), numberedTexts(2))
	require.ErrorIs(t, err, ErrDimensionMismatch)

	// Permanent: no retry despite the attempt budget.
	assert.Len(t, client.calls, 1)
}

func TestEmbedBatch_CountMismatchIsPermanent(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(_ int, texts []string) ([][]float32, error) {
		return identityVectors(texts[:1], 4), nil
	}}
	g, err := New(client, Config{Dimension: 4, MaxAttempts: 5}, log.NewNop())
	require.NoError(t, err)

	_, err = g.EmbedBatch(context.Background(), numberedTexts(3))
	require.Error(t, err)
	assert.Len(t, client.calls, 1)
}

func TestEmbedOne(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(_ int, texts []string) ([][]float32, error) {
		return identityVectors(texts, 4), nil
	}}
	g, err := New(client, Config{Dimension: 4}, log.NewNop())
	require.NoError(t, err)

	v, err := g.EmbedOne(context.Background(), "text-9")
	require.NoError(t, err)
	require.Len(t, v, 4)
	assert.Equal(t, float32(9), v[0])
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Dimension: 4}, log.NewNop())
	assert.Error(t, err)

	client := &fakeClient{fn: func(int, []string) ([][]float32, error) { return nil, nil }}
	_, err = New(client, Config{}, log.NewNop())
	assert.Error(t, err)
}
