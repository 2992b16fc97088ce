package predictor

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	cfg := DefaultConfig(10)
	cfg.EmbeddingDim = 8
	cfg.HiddenDim = 8
	cfg.Dropout = 0
	return cfg
}

func newSmall(t *testing.T) *Model {
	t.Helper()
	m, err := New(smallConfig())
	require.NoError(t, err)
	return m
}

func TestNew_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"vocab", func(c *Config) { c.Vocab = 0 }, ErrInvalidConfig},
		{"dims", func(c *Config) { c.HiddenDim = 0 }, ErrInvalidConfig},
		{"lr", func(c *Config) { c.LearningRate = 0 }, ErrInvalidConfig},
		{"clip", func(c *Config) { c.ClipNorm = -1 }, ErrInvalidConfig},
		{"dropout", func(c *Config) { c.Dropout = 1 }, ErrInvalidConfig},
		{"device", func(c *Config) { c.Device = "cuda" }, ErrUnsupportedDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := smallConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

// Device names are case-insensitive and empty means cpu.
func TestNew_DeviceCPU(t *testing.T) {
	t.Parallel()

	for _, dev := range []string{"", "cpu", "CPU"} {
		cfg := smallConfig()
		cfg.Device = dev
		_, err := New(cfg)
		require.NoError(t, err, "device %q", dev)
	}
}

// Predict returns a permutation of [0,N) and is deterministic.
func TestPredict_Permutation(t *testing.T) {
	t.Parallel()

	m := newSmall(t)
	got := m.Predict(3)
	require.Len(t, got, 10)

	sorted := slices.Clone(got)
	slices.Sort(sorted)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sorted)
	assert.Equal(t, got, m.Predict(3))

	// Same seed, same parameters, same ranking.
	assert.Equal(t, got, newSmall(t).Predict(3))
}

func TestPredict_OutOfRange(t *testing.T) {
	t.Parallel()

	m := newSmall(t)
	assert.Nil(t, m.Predict(-1))
	assert.Nil(t, m.Predict(10))
}

func TestFit_Errors(t *testing.T) {
	t.Parallel()

	m := newSmall(t)
	_, err := m.Fit([]int{1})
	assert.ErrorIs(t, err, ErrShortSequence)
	_, err = m.Fit([]int{1, 10})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = m.Fit([]int{-1, 2})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

// Repeating one transition drives its loss down and its target to the top.
func TestFit_LearnsTransition(t *testing.T) {
	t.Parallel()

	m := newSmall(t)
	first, err := m.Fit([]int{2, 7})
	require.NoError(t, err)
	require.Positive(t, first)

	var last float64
	for range 500 {
		last, err = m.Fit([]int{2, 7})
		require.NoError(t, err)
	}
	assert.Less(t, last, first)
	assert.Equal(t, 7, m.Predict(2)[0])
}

// A longer sequence is one update over all consecutive pairs.
func TestFit_SumsPairs(t *testing.T) {
	t.Parallel()

	a, b := newSmall(t), newSmall(t)
	pairAB, err := a.Fit([]int{1, 2})
	require.NoError(t, err)
	lossB, err := b.Fit([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Greater(t, lossB, pairAB, "two pairs contribute more loss than one")
}

// Dropout only applies while training; Predict stays deterministic.
func TestPredict_DeterministicWithDropout(t *testing.T) {
	t.Parallel()

	cfg := smallConfig()
	cfg.Dropout = 0.5
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.Fit([]int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, m.Predict(4), m.Predict(4))
}

func BenchmarkModel_FitDefault(b *testing.B) {
	m, err := New(DefaultConfig(2000))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Fit([]int{i % 2000, (i + 1) % 2000}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkModel_PredictDefault(b *testing.B) {
	m, err := New(DefaultConfig(2000))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Predict(i % 2000)
	}
}
