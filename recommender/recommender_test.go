package recommender

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/recomlive/predictor"
	"github.com/IvanBrykalov/recomlive/telemetry"
	"github.com/IvanBrykalov/recomlive/telemetry/telemetrytest"
)

// fakePredictor records Fit calls and ranks indices by a fixed order
// (ascending unless ranking is set).
type fakePredictor struct {
	n       int
	fits    [][]int
	ranking []int
	err     error
}

func (f *fakePredictor) Fit(seq []int) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.fits = append(f.fits, append([]int(nil), seq...))
	return 0.5, nil
}

func (f *fakePredictor) Predict(int) []int {
	if f.ranking != nil {
		return f.ranking
	}
	out := make([]int, f.n)
	for i := range out {
		out[i] = i
	}
	return out
}

var _ predictor.Predictor = (*fakePredictor)(nil)

func newTestRecommender(t *testing.T, cfg Config) (*Recommender, *fakePredictor, *telemetrytest.Recorder) {
	t.Helper()
	if cfg.DocsLimit == 0 {
		cfg.DocsLimit = 20
	}
	fp := &fakePredictor{n: cfg.DocsLimit}
	rec := telemetrytest.New()
	return New(cfg, fp, Options{Sink: rec}), fp, rec
}

func idx(t *testing.T, r *Recommender, doc string) int {
	t.Helper()
	e, ok := r.docs.Lookup(doc)
	require.True(t, ok, "doc %q not resident", doc)
	return e.Index
}

// record(A), record(B) trains exactly once on [idx(A), idx(B)], and a later
// recommend(B) leaves both A and B out.
func TestRecordRecommend_EndToEnd(t *testing.T) {
	t.Parallel()

	r, fp, rec := newTestRecommender(t, Config{})
	require.NoError(t, r.Record("A", "p1"))
	assert.Empty(t, fp.fits, "cold start never trains")

	require.NoError(t, r.Record("B", "p1"))
	require.Len(t, fp.fits, 1)
	assert.Equal(t, []int{idx(t, r, "A"), idx(t, r, "B")}, fp.fits[0])
	assert.Equal(t, 1.0, rec.Counter(telemetry.TrainStep))
	loss, ok := rec.GaugeValue(telemetry.TrainLoss)
	require.True(t, ok)
	assert.Equal(t, 0.5, loss)

	r.Record("C", "p2")
	got := r.Recommend("B", "p1")
	assert.NotContains(t, got, "A")
	assert.NotContains(t, got, "B")
	assert.Equal(t, []string{"C"}, got)
}

// Reloading the same document never trains.
func TestRecord_ReloadDoesNotTrain(t *testing.T) {
	t.Parallel()

	r, fp, _ := newTestRecommender(t, Config{})
	for range 5 {
		require.NoError(t, r.Record("A", "p1"))
	}
	assert.Empty(t, fp.fits)
	assert.Equal(t, []string{"A"}, r.PersonHistory("p1"))
}

// Each new transition trains exactly once, never batching a backlog.
func TestRecord_OneStepPerTransition(t *testing.T) {
	t.Parallel()

	r, fp, _ := newTestRecommender(t, Config{})
	for _, d := range []string{"A", "B", "C", "D"} {
		require.NoError(t, r.Record(d, "p1"))
	}
	require.Len(t, fp.fits, 3)
	for _, seq := range fp.fits {
		assert.Len(t, seq, 2)
	}
	assert.Equal(t, []int{idx(t, r, "C"), idx(t, r, "D")}, fp.fits[2])
}

// If the context document was evicted before the transition completes,
// the training step is skipped without error.
func TestRecord_StaleContextSkipsTraining(t *testing.T) {
	t.Parallel()

	// Capacity 1: recording B evicts A.
	r, fp, _ := newTestRecommender(t, Config{DocsLimit: 1})
	require.NoError(t, r.Record("A", "p1"))
	require.NoError(t, r.Record("B", "p1"))
	assert.Empty(t, fp.fits)
	assert.Equal(t, []string{"B", "A"}, r.PersonHistory("p1"))
}

// A predictor failure is reported and leaves the transition unlearned.
func TestRecord_FitError(t *testing.T) {
	t.Parallel()

	r, fp, rec := newTestRecommender(t, Config{})
	fp.err = errors.New("boom")
	require.NoError(t, r.Record("A", "p1"))
	err := r.Record("B", "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, fp.err)
	assert.Zero(t, rec.Counter(telemetry.TrainStep))

	pe, ok := r.users.Lookup("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"B", "A"}, pe.Value.UnlearnedPrefix())
}

// Cache hit and recommendation-followed signals.
func TestRecord_Signals(t *testing.T) {
	t.Parallel()

	r, _, rec := newTestRecommender(t, Config{})
	r.Record("A", "p1")
	r.Record("B", "p2")
	r.Record("A", "p2")
	assert.Equal(t, 3.0, rec.Counter(telemetry.RecordCall))
	assert.Equal(t, 1.0, rec.Counter(telemetry.DocumentsCacheHit))
	assert.Equal(t, 1.0, rec.Counter(telemetry.PersonsCacheHit))

	got := r.Recommend("A", "p1") // p1 has seen A only
	require.Contains(t, got, "B")
	r.Record("B", "p1")
	assert.Equal(t, 1.0, rec.Counter(telemetry.RecommendationHit))
}

// Unknown documents produce an empty result and the no-recommendation signal.
func TestRecommend_UnknownDoc(t *testing.T) {
	t.Parallel()

	r, _, rec := newTestRecommender(t, Config{})
	got := r.Recommend("nope", "p1")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 1.0, rec.Counter(telemetry.NoRecommendations))
	assert.Equal(t, 1.0, rec.Counter(telemetry.RecommendCall))
}

// Output is capped, excludes the query and history, and skips unresolvable
// and out-of-range indices in predictor order.
func TestRecommend_Filters(t *testing.T) {
	t.Parallel()

	r, fp, _ := newTestRecommender(t, Config{DocsLimit: 10, RecsLimit: 3})
	for i := range 6 {
		r.Record("d"+strconv.Itoa(i), "other")
	}
	r.Record("d1", "p1")
	r.Record("d2", "p1")

	// Indices 0..5 are d0..d5; 7..9 were never assigned.
	fp.ranking = []int{9, 3, 3, 42, -1, 1, 2, 7, 0, 5, 4}
	got := r.Recommend("d3", "p1")
	assert.Equal(t, []string{"d0", "d5", "d4"}, got)
	assert.Len(t, got, 3)
}

// Anonymous recommendations still filter the query document.
func TestRecommend_Anonymous(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRecommender(t, Config{RecsLimit: 2})
	r.Record("a", "p1")
	r.Record("b", "p1")
	r.Record("c", "p1")
	assert.Equal(t, []string{"b", "c"}, r.Recommend("a", ""))
}

// The last recommendation is remembered per person and replaced each time.
func TestRecommend_SetsLastRecommendations(t *testing.T) {
	t.Parallel()

	r, _, rec := newTestRecommender(t, Config{RecsLimit: 1})
	r.Record("a", "p1")
	r.Record("b", "p2")
	r.Record("c", "p2")

	require.Equal(t, []string{"b"}, r.Recommend("a", "p1"))
	pe, _ := r.users.Lookup("p1")
	assert.True(t, pe.Value.WasRecommended("b"))

	// Nothing left to recommend: the set is cleared.
	r.Record("b", "p1")
	r.Record("c", "p1")
	got := r.Recommend("a", "p1")
	assert.Empty(t, got)
	assert.False(t, pe.Value.WasRecommended("b"))
	assert.Equal(t, 1.0, rec.Counter(telemetry.NoRecommendations))
}

func TestPersonHistory_Unknown(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRecommender(t, Config{})
	got := r.PersonHistory("ghost")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// The real model plugs in and learns a repeated transition.
func TestRecommender_WithModel(t *testing.T) {
	t.Parallel()

	cfg := predictor.DefaultConfig(8)
	cfg.EmbeddingDim, cfg.HiddenDim, cfg.Dropout = 8, 8, 0
	m, err := predictor.New(cfg)
	require.NoError(t, err)

	r := New(Config{DocsLimit: 8, RecsLimit: 1}, m, Options{})
	for _, d := range []string{"x", "y", "z"} {
		r.Record(d, "seed")
	}
	for i := range 300 {
		p := "p" + strconv.Itoa(i)
		require.NoError(t, r.Record("x", p))
		require.NoError(t, r.Record("z", p))
	}
	assert.Equal(t, []string{"z"}, r.Recommend("x", ""))
	assert.Equal(t, 8, r.Config().DocsLimit)
}
