package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/marketsim/internal/commission"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// allEnvKeys is every config-related env var key.
var allEnvKeys = []string{
	"CONFIG_FILE", "PORT", "LOG_LEVEL", "LOG_FILE",
	"FLUSH_INTERVAL", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"VERIFY_MODE", "REJECT_PROBABILITY", "LATENCY_MIN", "LATENCY_MAX", "FAULT_SEED",
	"ALLOW_SHORT_SELLING", "CHECK_MARGIN", "AVERAGE_PRICE_PRECISION", "SECURITIES",
	"COMMISSION_PER_TRADE", "COMMISSION_PER_VOLUME", "COMMISSION_TURNOVER_RATE",
}

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

// genMillis draws a duration in whole milliseconds.
func genMillis(label string) *rapid.Generator[time.Duration] {
	return rapid.Custom(func(t *rapid.T) time.Duration {
		return time.Duration(rapid.IntRange(0, 5000).Draw(t, label)) * time.Millisecond
	})
}

// genSecurity draws a CODE@BOARD id that is never the cash pseudo-security.
func genSecurity() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		code := rapid.StringMatching(`[A-Z]{3,5}`).Draw(t, "code")
		board := rapid.SampledFrom([]string{"TQBR", "SPBFUT", "XNAS"}).Draw(t, "board")
		return code + "@" + board
	})
}

// Engine settings written to the environment are read back unchanged.
func TestProperty_EngineSettingsFromEnv(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		verify := rapid.Bool().Draw(t, "verify")
		short := rapid.Bool().Draw(t, "short")
		margin := rapid.Bool().Draw(t, "margin")
		probability := rapid.Float64Range(0, 1).Draw(t, "probability")
		seed := rapid.Int64().Draw(t, "seed")
		precision := rapid.IntRange(0, 12).Draw(t, "precision")
		latMin := genMillis("latencyMin").Draw(t, "latencyMin")
		latMax := latMin + genMillis("latencySpread").Draw(t, "latencySpread")
		securities := rapid.SliceOfNDistinct(genSecurity(), 0, 4, rapid.ID[string]).Draw(t, "securities")
		perTrade := rapid.IntRange(0, 100).Draw(t, "perTrade")

		os.Setenv("VERIFY_MODE", strconv.FormatBool(verify))
		os.Setenv("ALLOW_SHORT_SELLING", strconv.FormatBool(short))
		os.Setenv("CHECK_MARGIN", strconv.FormatBool(margin))
		os.Setenv("REJECT_PROBABILITY", strconv.FormatFloat(probability, 'g', -1, 64))
		os.Setenv("FAULT_SEED", strconv.FormatInt(seed, 10))
		os.Setenv("AVERAGE_PRICE_PRECISION", strconv.Itoa(precision))
		os.Setenv("LATENCY_MIN", latMin.String())
		os.Setenv("LATENCY_MAX", latMax.String())
		os.Setenv("SECURITIES", strings.Join(securities, ", "))
		if perTrade > 0 {
			os.Setenv("COMMISSION_PER_TRADE", strconv.Itoa(perTrade))
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid inputs: %v", err)
		}
		e := cfg.Engine

		if e.VerifyMode != verify || e.AllowShortSelling != short || e.CheckMargin != margin {
			t.Fatalf("flags = %v/%v/%v, want %v/%v/%v",
				e.VerifyMode, e.AllowShortSelling, e.CheckMargin, verify, short, margin)
		}
		if e.Fault.RejectProbability != probability || e.Fault.Seed != seed {
			t.Fatalf("fault = %+v, want probability %v seed %d", e.Fault, probability, seed)
		}
		if e.Fault.LatencyMin != latMin || e.Fault.LatencyMax != latMax {
			t.Fatalf("latency = [%s, %s], want [%s, %s]", e.Fault.LatencyMin, e.Fault.LatencyMax, latMin, latMax)
		}
		if int(e.AveragePricePrecision) != precision {
			t.Fatalf("AveragePricePrecision = %d, want %d", e.AveragePricePrecision, precision)
		}
		if len(e.Securities) != len(securities) {
			t.Fatalf("Securities = %v, want %v", e.Securities, securities)
		}
		for i := range securities {
			if e.Securities[i] != securities[i] {
				t.Fatalf("Securities[%d] = %q, want %q", i, e.Securities[i], securities[i])
			}
		}

		wantRules := 0
		if perTrade > 0 {
			wantRules = 1
		}
		if len(e.Commission) != wantRules {
			t.Fatalf("got %d commission rules, want %d", len(e.Commission), wantRules)
		}
		if wantRules == 1 && (e.Commission[0].Type != commission.RuleTypePerTrade || e.Commission[0].Value != strconv.Itoa(perTrade)) {
			t.Fatalf("commission rule = %+v", e.Commission[0])
		}

		if _, err := e.Options(); err != nil {
			t.Fatalf("Options() returned error for valid settings: %v", err)
		}
	})
}

// Latency bounds with max below a non-zero min are always rejected.
func TestProperty_InvertedLatencyBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		latMax := time.Duration(rapid.IntRange(1, 1000).Draw(t, "max")) * time.Millisecond
		latMin := latMax + time.Duration(rapid.IntRange(1, 1000).Draw(t, "gap"))*time.Millisecond
		os.Setenv("LATENCY_MIN", latMin.String())
		os.Setenv("LATENCY_MAX", latMax.String())

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should reject latency bounds [%s, %s]", latMin, latMax)
		}
	})
}

func TestProperty_InvalidPortReturnsError(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		port := rapid.OneOf(
			rapid.StringMatching(`[a-zA-Z]{1,10}`),
			rapid.Map(rapid.IntRange(65536, 1<<20), strconv.Itoa),
			rapid.Map(rapid.IntRange(-1000, 0), strconv.Itoa),
		).Draw(t, "port")
		os.Setenv("PORT", port)

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should return error for invalid PORT %q", port)
		}
	})
}

func TestProperty_LogLevel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		level := rapid.OneOf(
			rapid.SampledFrom(validLogLevels),
			rapid.StringMatching(`[a-z]{1,20}`),
		).Draw(t, "level")
		os.Setenv("LOG_LEVEL", level)

		valid := false
		for _, v := range validLogLevels {
			valid = valid || v == level
		}

		cfg, err := Load()
		if valid && (err != nil || cfg.LogLevel != level) {
			t.Fatalf("Load() = %v, %v for valid level %q", cfg, err, level)
		}
		if !valid && err == nil {
			t.Fatalf("Load() should return error for invalid LOG_LEVEL %q", level)
		}
	})
}

func TestProperty_RejectProbabilityOutOfRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		p := rapid.OneOf(
			rapid.Float64Range(-100, -0.0001),
			rapid.Float64Range(1.0001, 100),
		).Draw(t, "probability")
		os.Setenv("REJECT_PROBABILITY", fmt.Sprintf("%v", p))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should return error for REJECT_PROBABILITY %v", p)
		}
	})
}
