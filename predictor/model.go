package predictor

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

// DeviceCPU is the only compute device this implementation runs on.
const DeviceCPU = "cpu"

// adagradEps guards the Adagrad denominator.
const adagradEps = 1e-10

// Config sizes and tunes a Model.
type Config struct {
	// Vocab is N, the number of item indices (the document cache capacity).
	Vocab int
	// EmbeddingDim is the width of the per-item embedding.
	EmbeddingDim int
	// HiddenDim is the width of the gated hidden layer.
	HiddenDim int
	// LearningRate is the Adagrad step size.
	LearningRate float64
	// ClipNorm bounds the global L2 norm of each update's gradient.
	ClipNorm float64
	// Dropout is the probability of zeroing a hidden unit while training.
	Dropout float64
	// Device selects where the model runs; "" means DeviceCPU.
	Device string
	// Seed drives parameter initialization and dropout masks.
	Seed uint64
}

// DefaultConfig returns the stock hyper-parameters for a vocabulary of n items.
func DefaultConfig(n int) Config {
	return Config{
		Vocab:        n,
		EmbeddingDim: 320,
		HiddenDim:    128,
		LearningRate: 0.05,
		ClipNorm:     5,
		Dropout:      0.1,
		Device:       DeviceCPU,
		Seed:         1,
	}
}

func (c Config) validate() error {
	switch {
	case c.Vocab < 1:
		return fmt.Errorf("%w: vocab %d", ErrInvalidConfig, c.Vocab)
	case c.EmbeddingDim < 1 || c.HiddenDim < 1:
		return fmt.Errorf("%w: dims %dx%d", ErrInvalidConfig, c.EmbeddingDim, c.HiddenDim)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate %v", ErrInvalidConfig, c.LearningRate)
	case c.ClipNorm <= 0:
		return fmt.Errorf("%w: clip norm %v", ErrInvalidConfig, c.ClipNorm)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout %v", ErrInvalidConfig, c.Dropout)
	}
	if c.Device != "" && !strings.EqualFold(c.Device, DeviceCPU) {
		return fmt.Errorf("%w: %q", ErrUnsupportedDevice, c.Device)
	}
	return nil
}

// param is one trainable tensor with its gradient and Adagrad accumulator.
type param struct {
	val, grad, acc []float64
}

func newParam(n int) *param {
	return &param{
		val:  make([]float64, n),
		grad: make([]float64, n),
		acc:  make([]float64, n),
	}
}

// Model predicts the next item from the current one:
//
//	e = embed[i]
//	u = σ(Wz·e + bz), c = tanh(Wn·e + bn)
//	h = dropout((1-u) ⊙ c)
//	log p(j|i) = logsoftmax(Wo·h + bo)[j]
//
// The hidden layer is a GRU step taken from a zero state. Training minimizes
// cross-entropy with Adagrad and global gradient-norm clipping.
//
// Model is not safe for concurrent use.
type Model struct {
	cfg Config
	rng *rand.Rand

	embed        *param // N×D
	gateW, gateB *param // H×D, H
	candW, candB *param // H×D, H
	outW, outB   *param // N×H, N

	dense   []*param // every param but embed
	touched []int    // embed rows holding gradient in the current update

	// scratch, reused across calls
	e, u, c, h, mask, hd []float64
	logits, dlogits      []float64
	dh, daz, dan, de     []float64
}

var _ Predictor = (*Model)(nil)

// New builds a freshly initialized model.
func New(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n, d, hd := cfg.Vocab, cfg.EmbeddingDim, cfg.HiddenDim

	m := &Model{
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		embed: newParam(n * d),
		gateW: newParam(hd * d), gateB: newParam(hd),
		candW: newParam(hd * d), candB: newParam(hd),
		outW: newParam(n * hd), outB: newParam(n),

		e: make([]float64, d), de: make([]float64, d),
		u: make([]float64, hd), c: make([]float64, hd), h: make([]float64, hd),
		mask: make([]float64, hd), hd: make([]float64, hd),
		dh: make([]float64, hd), daz: make([]float64, hd), dan: make([]float64, hd),
		logits: make([]float64, n), dlogits: make([]float64, n),
	}
	m.dense = []*param{m.gateW, m.gateB, m.candW, m.candB, m.outW, m.outB}

	bound := 1 / math.Sqrt(float64(hd))
	fillNormal(m.embed.val, m.rng)
	for _, p := range m.dense {
		fillUniform(p.val, bound, m.rng)
	}
	return m, nil
}

// Vocab returns N.
func (m *Model) Vocab() int { return m.cfg.Vocab }

// Fit runs one Adagrad update over every (seq[k], seq[k+1]) pair and
// returns the summed cross-entropy loss measured before the update.
func (m *Model) Fit(seq []int) (float64, error) {
	if len(seq) < 2 {
		return 0, ErrShortSequence
	}
	for _, idx := range seq {
		if idx < 0 || idx >= m.cfg.Vocab {
			return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, idx, m.cfg.Vocab)
		}
	}

	m.zeroGrad()
	loss := 0.0
	for k := 0; k+1 < len(seq); k++ {
		loss += m.backward(seq[k], seq[k+1])
	}
	m.clipGrad()
	m.step()
	return loss, nil
}

// Predict ranks all N indices by their likelihood of following idx.
// Ties keep ascending index order.
func (m *Model) Predict(idx int) []int {
	if idx < 0 || idx >= m.cfg.Vocab {
		return nil
	}
	m.forward(idx, false)

	order := make([]int, m.cfg.Vocab)
	for i := range order {
		order[i] = i
	}
	logits := m.logits
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(logits[b], logits[a])
	})
	return order
}

// -------------------- internals --------------------

func (m *Model) embedRow(w []float64, i int) []float64 {
	d := m.cfg.EmbeddingDim
	return w[i*d : (i+1)*d]
}

func (m *Model) mat(w []float64, rows, cols int) matrix {
	return matrix{rows: rows, cols: cols, w: w}
}

// forward fills the scratch activations and raw logits for context i.
func (m *Model) forward(i int, train bool) {
	n, d, hd := m.cfg.Vocab, m.cfg.EmbeddingDim, m.cfg.HiddenDim

	copy(m.e, m.embedRow(m.embed.val, i))
	m.mat(m.gateW.val, hd, d).mulVec(m.u, m.e, m.gateB.val)
	m.mat(m.candW.val, hd, d).mulVec(m.c, m.e, m.candB.val)

	keep := 1 - m.cfg.Dropout
	for k := range hd {
		m.u[k] = sigmoid(m.u[k])
		m.c[k] = math.Tanh(m.c[k])
		m.h[k] = (1 - m.u[k]) * m.c[k]

		m.mask[k] = 1
		if train && m.cfg.Dropout > 0 {
			if m.rng.Float64() < m.cfg.Dropout {
				m.mask[k] = 0
			} else {
				m.mask[k] = 1 / keep
			}
		}
		m.hd[k] = m.h[k] * m.mask[k]
	}
	m.mat(m.outW.val, n, hd).mulVec(m.logits, m.hd, m.outB.val)
}

// backward runs forward in training mode for (ctx → target), accumulates
// gradients and returns the pair's loss.
func (m *Model) backward(ctx, target int) float64 {
	n, d, hd := m.cfg.Vocab, m.cfg.EmbeddingDim, m.cfg.HiddenDim

	m.forward(ctx, true)
	logSoftmax(m.logits)
	loss := -m.logits[target]

	for j, lp := range m.logits {
		m.dlogits[j] = math.Exp(lp)
	}
	m.dlogits[target]--

	// Output layer.
	m.mat(m.outW.grad, n, hd).addOuter(m.dlogits, m.hd)
	for j, g := range m.dlogits {
		m.outB.grad[j] += g
	}
	clear(m.dh)
	m.mat(m.outW.val, n, hd).mulVecT(m.dh, m.dlogits)

	// Gated hidden layer.
	for k := range hd {
		dh := m.dh[k] * m.mask[k]
		u, c := m.u[k], m.c[k]
		m.dan[k] = dh * (1 - u) * (1 - c*c)
		m.daz[k] = -dh * c * u * (1 - u)
	}
	m.mat(m.gateW.grad, hd, d).addOuter(m.daz, m.e)
	m.mat(m.candW.grad, hd, d).addOuter(m.dan, m.e)
	for k := range hd {
		m.gateB.grad[k] += m.daz[k]
		m.candB.grad[k] += m.dan[k]
	}

	// Embedding row.
	clear(m.de)
	m.mat(m.gateW.val, hd, d).mulVecT(m.de, m.daz)
	m.mat(m.candW.val, hd, d).mulVecT(m.de, m.dan)
	row := m.embedRow(m.embed.grad, ctx)
	for j, g := range m.de {
		row[j] += g
	}
	if !slices.Contains(m.touched, ctx) {
		m.touched = append(m.touched, ctx)
	}
	return loss
}

func (m *Model) zeroGrad() {
	for _, p := range m.dense {
		clear(p.grad)
	}
	for _, i := range m.touched {
		clear(m.embedRow(m.embed.grad, i))
	}
	m.touched = m.touched[:0]
}

// clipGrad rescales all gradients so their global L2 norm is <= ClipNorm.
func (m *Model) clipGrad() {
	total := 0.0
	for _, p := range m.dense {
		total += sumSquares(p.grad)
	}
	for _, i := range m.touched {
		total += sumSquares(m.embedRow(m.embed.grad, i))
	}
	norm := math.Sqrt(total)
	coef := m.cfg.ClipNorm / (norm + 1e-6)
	if coef >= 1 {
		return
	}
	for _, p := range m.dense {
		scale(p.grad, coef)
	}
	for _, i := range m.touched {
		scale(m.embedRow(m.embed.grad, i), coef)
	}
}

// step applies one Adagrad update.
func (m *Model) step() {
	lr := m.cfg.LearningRate
	adagrad := func(val, grad, acc []float64) {
		for j, g := range grad {
			if g == 0 {
				continue
			}
			acc[j] += g * g
			val[j] -= lr * g / (math.Sqrt(acc[j]) + adagradEps)
		}
	}
	for _, p := range m.dense {
		adagrad(p.val, p.grad, p.acc)
	}
	for _, i := range m.touched {
		adagrad(m.embedRow(m.embed.val, i), m.embedRow(m.embed.grad, i), m.embedRow(m.embed.acc, i))
	}
}
