// Package entropy supplies the randomness behind rebellions, drafts, event
// rolls and diagnostics. A session owns exactly one Source.
// Sources may draw true randomness from random.org with a crypto/rand fallback.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Intn draws an integer in [0, n) from src. n must be positive.
func Intn(src Source, n int) int {
	v := int(src.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Seeded is a deterministic PRNG source. It is safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded returns a PCG-backed source for the given seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Float64 implements Source.
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Sequence replays fixed draws in order and then repeats the last one.
// It exists so callers can script exact outcomes.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence returns a Sequence over values. An empty sequence yields 0.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float64 implements Source.
func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	if s.next >= len(s.values) {
		return s.values[len(s.values)-1]
	}
	v := s.values[s.next]
	s.next++
	return v
}

const randomOrgURL = "https://api.random.org/json-rpc/4/invoke"

const (
	poolLowWater  = 10
	refillBatch   = 100
	refillBackoff = time.Minute
)

// Client provides true random numbers from random.org with a local pool.
// Draws never wait on the network: a low pool is topped up in the
// background and draws come from the fallback until it arrives.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
	fallback Source
	backoff  time.Duration
	now      func() time.Time

	mu           sync.Mutex
	pool         []float64
	refilling    bool
	backoffUntil time.Time
	inflight     sync.WaitGroup
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
// When the pool is empty, draws come from fallback, or from crypto/rand
// when fallback is nil.
func NewClient(apiKey string, fallback Source) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: randomOrgURL,
		client:   &http.Client{Timeout: 15 * time.Second},
		fallback: fallback,
		backoff:  refillBackoff,
		now:      time.Now,
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Float64 returns a random float64 in [0, 1) from the pool, starting a
// background refill when the pool runs low.
func (c *Client) Float64() float64 {
	if !c.Enabled() {
		return CryptoFloat()
	}

	c.mu.Lock()
	if len(c.pool) < poolLowWater && !c.refilling && !c.now().Before(c.backoffUntil) {
		c.refilling = true
		c.inflight.Add(1)
		go c.topUp()
	}
	if len(c.pool) == 0 {
		c.mu.Unlock()
		if c.fallback != nil {
			return c.fallback.Float64()
		}
		return CryptoFloat()
	}
	val := c.pool[0]
	c.pool = c.pool[1:]
	c.mu.Unlock()
	return val
}

func (c *Client) topUp() {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
	defer cancel()
	vals, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refilling = false
	if err != nil {
		c.backoffUntil = c.now().Add(c.backoff)
		slog.Debug("random.org refill failed", "error", err, "retry_in", c.backoff)
		return
	}
	c.pool = append(c.pool, vals...)
	slog.Debug("random.org pool refilled", "count", len(c.pool))
}

func (c *Client) fetch(ctx context.Context) ([]float64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             refillBatch,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("api error: %s", result.Error.Message)
	}

	vals := make([]float64, 0, len(result.Result.Random.Data))
	for _, v := range result.Result.Random.Data {
		if v >= 0 && v < 1 {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	return vals, nil
}

// CryptoFloat returns a random float using crypto/rand.
func CryptoFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	// 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
