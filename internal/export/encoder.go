package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"investimento/internal/cache"
	"investimento/internal/core"
)

// EncoderConfig bounds the memoized CSV bytes.
type EncoderConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultEncoderConfig returns sensible defaults
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		CacheSize: 128,
		CacheTTL:  10 * time.Minute,
	}
}

// Encoder memoizes CSV encodings keyed by projection content. Concurrent
// requests for the same projection share a single encoding.
type Encoder struct {
	cache  *cache.LRUCache[[]byte]
	flight singleflight.Group
}

// NewEncoder creates an encoder; zero config fields take defaults.
func NewEncoder(cfg EncoderConfig) *Encoder {
	def := DefaultEncoderConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Encoder{cache: cache.NewLRUCache[[]byte](cfg.CacheSize, cfg.CacheTTL)}
}

// Cache exposes the backing cache for cleanup registration and stats.
func (e *Encoder) Cache() *cache.LRUCache[[]byte] {
	return e.cache
}

// Encode returns the CSV bytes for p and whether they came from the cache.
// The returned slice is owned by the caller.
func (e *Encoder) Encode(p core.Projection) ([]byte, bool, error) {
	key := Key(p)
	if data, ok := e.cache.Get(key); ok {
		return bytes.Clone(data), true, nil
	}

	v, err, _ := e.flight.Do(key, func() (interface{}, error) {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, p); err != nil {
			return nil, err
		}
		data := buf.Bytes()
		e.cache.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return bytes.Clone(v.([]byte)), false, nil
}

// Key digests everything that determines the CSV output of p.
func Key(p core.Projection) string {
	h := sha256.New()
	var buf [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	putInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	h.Write([]byte(p.Policy))
	putFloat(p.Input.InitialAmount)
	putFloat(p.Input.MonthlyContribution)
	putInt(p.Input.Months)
	putFloat(p.Input.AnnualRatePercent)
	putInt(len(p.Records))
	for _, r := range p.Records {
		putInt(r.Month)
		putFloat(r.CumulativeValue)
		putFloat(r.CumulativeInterest)
		putFloat(r.RealInterest)
	}
	return hex.EncodeToString(h.Sum(nil))
}
