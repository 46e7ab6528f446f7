package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/faults"
)

// fakeBackend records calls and returns scripted responses.
type fakeBackend struct {
	putCalls    [][]Vector
	putErrs     []error // consumed one per Put call; nil past the end
	queryVec    []float32
	queryTopK   int
	queryFilter map[string]any
	queryOut    []RawResult
	queryErr    error
	delCalls    [][]string
	delErrs     []error
	statsOut    Stats
	statsErr    error
}

func (f *fakeBackend) Put(_ context.Context, vectors []Vector) error {
	f.putCalls = append(f.putCalls, vectors)
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) Query(_ context.Context, query []float32, topK int, filter map[string]any) ([]RawResult, error) {
	f.queryVec = query
	f.queryTopK = topK
	f.queryFilter = filter
	return f.queryOut, f.queryErr
}

func (f *fakeBackend) Delete(_ context.Context, keys []string) error {
	f.delCalls = append(f.delCalls, keys)
	if len(f.delErrs) > 0 {
		err := f.delErrs[0]
		f.delErrs = f.delErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) Stats(_ context.Context) (Stats, error) {
	return f.statsOut, f.statsErr
}

// newTestGateway builds a Gateway over fb with sleeping disabled, capturing
// the backoff delays instead.
func newTestGateway(t *testing.T, fb *fakeBackend) (*Gateway, *[]time.Duration) {
	t.Helper()
	g, err := NewGateway(fb, Config{Dimension: 4})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	var delays []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return g, &delays
}

func makeRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			Key:    fmt.Sprintf("key-%d", i),
			Values: []float64{0.1, 0.2, 0.3, 0.4},
		}
	}
	return records
}

func TestNewGateway_RejectsNonCosine(t *testing.T) {
	t.Parallel()
	_, err := NewGateway(&fakeBackend{}, Config{DistanceMetric: "euclidean"})
	if err == nil {
		t.Fatal("NewGateway() with euclidean metric: want error, got nil")
	}
}

func TestUpsert_SplitsIntoBatches(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{}
	g, _ := newTestGateway(t, fb)

	uploaded, err := g.Upsert(context.Background(), makeRecords(1200))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if uploaded != 1200 {
		t.Errorf("uploaded = %d, want 1200", uploaded)
	}
	// 1200 records → batches of 500, 500, 200.
	if len(fb.putCalls) != 3 {
		t.Fatalf("Put called %d times, want 3", len(fb.putCalls))
	}
	for i, want := range []int{500, 500, 200} {
		if len(fb.putCalls[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(fb.putCalls[i]), want)
		}
	}
}

func TestUpsert_CoercesToFloat32(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{}
	g, _ := newTestGateway(t, fb)

	if _, err := g.Upsert(context.Background(), makeRecords(1)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got := fb.putCalls[0][0].Data
	want := []float32{0.1, 0.2, 0.3, 0.4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Data[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUpsert_RetriesRateLimitWithBackoff(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{
		putErrs: []error{faults.ErrRateLimited, faults.ErrRateLimited, nil},
	}
	g, delays := newTestGateway(t, fb)

	uploaded, err := g.Upsert(context.Background(), makeRecords(10))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if uploaded != 10 {
		t.Errorf("uploaded = %d, want 10", uploaded)
	}
	if len(fb.putCalls) != 3 {
		t.Errorf("Put called %d times, want 3", len(fb.putCalls))
	}
	// Backoff doubles: 1s after the first failure, 2s after the second.
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("recorded %d delays, want %d", len(*delays), len(want))
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestUpsert_RateLimitExhaustion(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{
		putErrs: []error{faults.ErrRateLimited, faults.ErrRateLimited, faults.ErrRateLimited},
	}
	g, _ := newTestGateway(t, fb)

	uploaded, err := g.Upsert(context.Background(), makeRecords(10))
	if !errors.Is(err, faults.ErrUpsert) {
		t.Errorf("error = %v, want ErrUpsert", err)
	}
	if !errors.Is(err, faults.ErrRateLimited) {
		t.Errorf("error = %v, want wrapped ErrRateLimited", err)
	}
	if uploaded != 0 {
		t.Errorf("uploaded = %d, want 0", uploaded)
	}
	if len(fb.putCalls) != 3 {
		t.Errorf("Put called %d times, want 3 (attempts exhausted)", len(fb.putCalls))
	}
}

func TestUpsert_NonRateLimitErrorFailsImmediately(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	fb := &fakeBackend{
		putErrs: []error{nil, boom},
	}
	g, delays := newTestGateway(t, fb)

	uploaded, err := g.Upsert(context.Background(), makeRecords(600))
	if !errors.Is(err, faults.ErrUpsert) {
		t.Errorf("error = %v, want ErrUpsert", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped cause", err)
	}
	// First batch of 500 landed before the second failed.
	if uploaded != 500 {
		t.Errorf("uploaded = %d, want 500", uploaded)
	}
	if len(fb.putCalls) != 2 {
		t.Errorf("Put called %d times, want 2 (no retry)", len(fb.putCalls))
	}
	if len(*delays) != 0 {
		t.Errorf("recorded %d delays, want 0", len(*delays))
	}
}

func TestQuery_SimilarityConversion(t *testing.T) {
	t.Parallel()
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1.0},   // identical vectors
		{1, 0.5},   // orthogonal
		{2, 0.0},   // opposite
		{0.4, 0.8},
	}
	for _, tc := range cases {
		fb := &fakeBackend{
			queryOut: []RawResult{{Key: "k", Distance: tc.distance}},
		}
		g, _ := newTestGateway(t, fb)

		matches, err := g.Query(context.Background(), []float64{0.1}, 6, 0, nil)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("distance %v: got %d matches, want 1", tc.distance, len(matches))
		}
		if matches[0].Score != tc.want {
			t.Errorf("distance %v: score = %v, want %v", tc.distance, matches[0].Score, tc.want)
		}
	}
}

func TestQuery_ThresholdFiltersAndPreservesOrder(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{
		queryOut: []RawResult{
			{Key: "a", Distance: 0.2}, // score 0.9
			{Key: "b", Distance: 0.6}, // score 0.7
			{Key: "c", Distance: 1.2}, // score 0.4 — below threshold
			{Key: "d", Distance: 0.8}, // score 0.6
		},
	}
	g, _ := newTestGateway(t, fb)

	matches, err := g.Query(context.Background(), []float64{0.1}, 6, 0.5, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	wantKeys := []string{"a", "b", "d"}
	if len(matches) != len(wantKeys) {
		t.Fatalf("got %d matches, want %d", len(matches), len(wantKeys))
	}
	for i, want := range wantKeys {
		if matches[i].Key != want {
			t.Errorf("matches[%d].Key = %q, want %q", i, matches[i].Key, want)
		}
	}
}

func TestQuery_BoundaryScoreIncluded(t *testing.T) {
	t.Parallel()
	// distance 1.0 → score exactly 0.5, which meets a 0.5 threshold.
	fb := &fakeBackend{
		queryOut: []RawResult{{Key: "edge", Distance: 1.0}},
	}
	g, _ := newTestGateway(t, fb)

	matches, err := g.Query(context.Background(), []float64{0.1}, 6, 0.5, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("got %d matches, want 1 (score == threshold is a match)", len(matches))
	}
}

func TestQuery_WrapsBackendError(t *testing.T) {
	t.Parallel()
	boom := errors.New("index offline")
	fb := &fakeBackend{queryErr: boom}
	g, _ := newTestGateway(t, fb)

	_, err := g.Query(context.Background(), []float64{0.1}, 6, 0.5, nil)
	if !errors.Is(err, faults.ErrVectorQuery) {
		t.Errorf("error = %v, want ErrVectorQuery", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped cause", err)
	}
}

func TestQuery_PassesFilterAndTopK(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{}
	g, _ := newTestGateway(t, fb)

	filter := map[string]any{"source": "docs/intro.md"}
	if _, err := g.Query(context.Background(), []float64{0.1, 0.2}, 3, 0.5, filter); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if fb.queryTopK != 3 {
		t.Errorf("topK = %d, want 3", fb.queryTopK)
	}
	if fb.queryFilter["source"] != "docs/intro.md" {
		t.Errorf("filter not forwarded: %v", fb.queryFilter)
	}
	if len(fb.queryVec) != 2 {
		t.Errorf("query vector length = %d, want 2", len(fb.queryVec))
	}
}

func TestDelete_BatchesAndReportsPartial(t *testing.T) {
	t.Parallel()
	boom := errors.New("delete rejected")
	fb := &fakeBackend{
		delErrs: []error{nil, boom},
	}
	g, _ := newTestGateway(t, fb)

	keys := make([]string, 700)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	deleted, err := g.Delete(context.Background(), keys)
	if !errors.Is(err, faults.ErrDelete) {
		t.Errorf("error = %v, want ErrDelete", err)
	}
	if deleted != 500 {
		t.Errorf("deleted = %d, want 500", deleted)
	}
	if len(fb.delCalls) != 2 {
		t.Errorf("Delete called %d times, want 2", len(fb.delCalls))
	}
}

func TestDelete_AllBatchesSucceed(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{}
	g, _ := newTestGateway(t, fb)

	deleted, err := g.Delete(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
}

func TestStats_DegradedPlaceholder(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{statsErr: errors.New("info unavailable")}
	g, _ := newTestGateway(t, fb)

	stats, err := g.Stats(context.Background())
	if err == nil {
		t.Fatal("Stats() want error alongside placeholder, got nil")
	}
	if stats.Status != "unavailable" {
		t.Errorf("Status = %q, want %q", stats.Status, "unavailable")
	}
	if stats.Dimension != 4 {
		t.Errorf("Dimension = %d, want 4 (from config)", stats.Dimension)
	}
	if stats.TotalVectors != 0 {
		t.Errorf("TotalVectors = %d, want 0", stats.TotalVectors)
	}
}

func TestStats_PassThrough(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{statsOut: Stats{TotalVectors: 42, Dimension: 1024, Status: "ok"}}
	g, _ := newTestGateway(t, fb)

	stats, err := g.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectors != 42 || stats.Dimension != 1024 {
		t.Errorf("stats = %+v, want 42 vectors at dimension 1024", stats)
	}
}
