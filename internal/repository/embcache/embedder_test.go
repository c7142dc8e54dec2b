package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/db"
)

// --- Mocks ---

type mockKV struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	setKeys []string
	setTTLs []time.Duration
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.setKeys = append(m.setKeys, key)
	m.setTTLs = append(m.setTTLs, ttl)
	return nil
}

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

// --- Tests ---

func TestEmbedText_MissThenHit(t *testing.T) {
	kv := newMockKV()
	inner := &mockEmbedder{vec: []float32{0.1, -0.5, 2}}
	cached := New(inner, kv, time.Hour, nil, zap.NewNop())

	first, err := cached.EmbedText(context.Background(), "red dress")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := cached.EmbedText(context.Background(), "red dress")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("inner embedder called %d times, want 1", inner.calls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs: %v vs %v", first, second)
		}
	}
}

func TestEmbedText_DifferentTextsGetDifferentKeys(t *testing.T) {
	kv := newMockKV()
	cached := New(&mockEmbedder{vec: []float32{1}}, kv, time.Hour, nil, zap.NewNop())

	_, _ = cached.EmbedText(context.Background(), "red dress")
	_, _ = cached.EmbedText(context.Background(), "blue dress")

	if len(kv.setKeys) != 2 || kv.setKeys[0] == kv.setKeys[1] {
		t.Errorf("expected two distinct cache keys, got %v", kv.setKeys)
	}
}

func TestEmbedText_InnerErrorPropagates(t *testing.T) {
	cached := New(&mockEmbedder{err: errors.New("quota")}, newMockKV(), time.Hour, nil, zap.NewNop())
	if _, err := cached.EmbedText(context.Background(), "anything"); err == nil {
		t.Error("expected inner error to propagate")
	}
}

func TestEmbedText_StoreFailureFallsThrough(t *testing.T) {
	kv := newMockKV()
	kv.getErr = errors.New("store down")
	inner := &mockEmbedder{vec: []float32{1, 2}}
	cached := New(inner, kv, time.Hour, nil, zap.NewNop())

	vec, err := cached.EmbedText(context.Background(), "red dress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || inner.calls != 1 {
		t.Errorf("expected fallthrough to inner embedder, calls=%d vec=%v", inner.calls, vec)
	}
}

func TestEmbedText_CacheWritesCarryTTL(t *testing.T) {
	kv := newMockKV()
	cached := New(&mockEmbedder{vec: []float32{1}}, kv, 3*time.Hour, nil, zap.NewNop())

	if _, err := cached.EmbedText(context.Background(), "red dress"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kv.setTTLs) != 1 || kv.setTTLs[0] != 3*time.Hour {
		t.Errorf("cache write TTLs = %v, want [3h]", kv.setTTLs)
	}
}

func TestEmbedText_NonPositiveTTLFallsBackToDefault(t *testing.T) {
	kv := newMockKV()
	cached := New(&mockEmbedder{vec: []float32{1}}, kv, 0, nil, zap.NewNop())

	if _, err := cached.EmbedText(context.Background(), "red dress"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kv.setTTLs) != 1 || kv.setTTLs[0] != defaultTTL {
		t.Errorf("cache write TTLs = %v, want [%v]", kv.setTTLs, defaultTTL)
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("bytesToVector: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("round trip changed vector: %v vs %v", in, out)
		}
	}
}

func TestBytesToVector_RejectsBadLength(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated payload")
	}
}
