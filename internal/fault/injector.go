// Package fault perturbs order acceptance with seeded random rejections and
// delays output emission through a per-security ordered queue.
package fault

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Config controls fault injection. The zero value disables it.
type Config struct {
	RejectProbability float64       `yaml:"reject_probability" json:"reject_probability"`
	LatencyMin        time.Duration `yaml:"latency_min" json:"latency_min"`
	LatencyMax        time.Duration `yaml:"latency_max" json:"latency_max"`
	Seed              int64         `yaml:"seed" json:"seed"`
}

// Validate checks the probability range and latency bounds.
func (c Config) Validate() error {
	if c.RejectProbability < 0 || c.RejectProbability > 1 {
		return errors.Errorf("reject probability %v must be within [0, 1]", c.RejectProbability)
	}
	if c.LatencyMin < 0 || c.LatencyMax < 0 {
		return errors.New("latency bounds must not be negative")
	}
	if c.LatencyMax > 0 && c.LatencyMax < c.LatencyMin {
		return errors.Errorf("latency max %s is below latency min %s", c.LatencyMax, c.LatencyMin)
	}
	return nil
}

// Injector draws rejections and latencies from a PRNG seeded by Config.Seed,
// so a run with a given seed and input is reproducible.
type Injector struct {
	cfg Config
	rnd *rand.Rand
}

// NewInjector returns an injector. In verify mode every fault is disabled
// regardless of cfg.
func NewInjector(cfg Config, verifyMode bool) *Injector {
	if verifyMode {
		cfg.RejectProbability = 0
		cfg.LatencyMin = 0
		cfg.LatencyMax = 0
	}
	if cfg.LatencyMax < cfg.LatencyMin {
		cfg.LatencyMax = cfg.LatencyMin
	}
	return &Injector{cfg: cfg, rnd: rand.New(rand.NewSource(cfg.Seed))}
}

// Config returns the effective configuration.
func (i *Injector) Config() Config {
	return i.cfg
}

// Reseed restarts the random sequence from the configured seed.
func (i *Injector) Reseed() {
	i.rnd = rand.New(rand.NewSource(i.cfg.Seed))
}

// ShouldReject reports whether the next register command is to be rejected.
// No random number is drawn while the probability is zero.
func (i *Injector) ShouldReject() bool {
	switch {
	case i.cfg.RejectProbability <= 0:
		return false
	case i.cfg.RejectProbability >= 1:
		return true
	}
	return i.rnd.Float64() < i.cfg.RejectProbability
}

// Delays reports whether emission may be deferred at all.
func (i *Injector) Delays() bool {
	return i.cfg.LatencyMax > 0
}

// Latency returns the emission delay for the next output batch.
func (i *Injector) Latency() time.Duration {
	span := i.cfg.LatencyMax - i.cfg.LatencyMin
	if span <= 0 {
		return i.cfg.LatencyMin
	}
	return i.cfg.LatencyMin + time.Duration(i.rnd.Int63n(int64(span)+1))
}
