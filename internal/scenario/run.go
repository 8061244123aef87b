package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/wire"
)

// Result is the output of one scenario run.
type Result struct {
	Outputs []domain.Message
	// PerStep holds the output emitted while each step was processed.
	// Output drained after the last step is only in Outputs.
	PerStep [][]domain.Message
}

// Encode returns the newline-delimited JSON encoding of every output.
func (r *Result) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	for _, m := range r.Outputs {
		if err := enc.Encode(m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Run replays the script through a fresh engine. Deferred output still
// queued after the last step is drained into the result.
func Run(s *Script, log logrus.FieldLogger) (*Result, error) {
	return run(s, s.Settings, log)
}

func run(s *Script, settings config.Engine, log logrus.FieldLogger) (*Result, error) {
	inputs, err := s.Inputs()
	if err != nil {
		return nil, err
	}
	opts, err := settings.Options()
	if err != nil {
		return nil, err
	}

	res := &Result{PerStep: make([][]domain.Message, len(inputs))}
	step := 0
	opts.Logger = log
	opts.Output = func(m domain.Message) {
		res.Outputs = append(res.Outputs, m)
		if step >= 0 {
			res.PerStep[step] = append(res.PerStep[step], m)
		}
	}
	e := engine.New(opts)
	for i, msg := range inputs {
		step = i
		e.Process(msg)
	}
	step = -1
	if n := e.Drain(); n > 0 && log != nil {
		log.WithField("batches", n).Debug("drained deferred output")
	}
	return res, nil
}

// Check compares the output of every step that declares expectations.
func (s *Script) Check(res *Result) error {
	for i, st := range s.Steps {
		if st.Expect == nil {
			continue
		}
		got := res.PerStep[i]
		if len(got) != len(st.Expect) {
			return errors.Errorf("step %d (%s): got %d messages, want %d", i, st.Type, len(got), len(st.Expect))
		}
		for j := range st.Expect {
			actual, err := wire.FromMessage(got[j])
			if err != nil {
				return err
			}
			if err := match(&st.Expect[j], actual); err != nil {
				return errors.Wrapf(err, "step %d (%s) message %d", i, st.Type, j)
			}
		}
	}
	return nil
}

// Divergence locates the first output where two runs disagree.
type Divergence struct {
	Index  int
	First  string
	Second string
}

func (d *Divergence) String() string {
	return fmt.Sprintf("output %d differs:\n  first:  %s\n  second: %s", d.Index, d.First, d.Second)
}

// Report summarizes a verification.
type Report struct {
	Outputs    int
	Divergence *Divergence
}

// OK reports whether both runs produced identical streams.
func (r *Report) OK() bool {
	return r.Divergence == nil
}

// Verify runs the script through two fresh engines in verify mode and
// compares their encoded output streams message by message.
func Verify(s *Script, log logrus.FieldLogger) (*Report, error) {
	settings := s.Settings
	settings.VerifyMode = true

	first, err := run(s, settings, log)
	if err != nil {
		return nil, errors.Wrap(err, "first run")
	}
	second, err := run(s, settings, log)
	if err != nil {
		return nil, errors.Wrap(err, "second run")
	}

	a, err := encodeAll(first.Outputs)
	if err != nil {
		return nil, err
	}
	b, err := encodeAll(second.Outputs)
	if err != nil {
		return nil, err
	}

	report := &Report{Outputs: len(a)}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y string
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			report.Divergence = &Divergence{Index: i, First: x, Second: y}
			break
		}
	}
	return report, nil
}

func encodeAll(msgs []domain.Message) ([]string, error) {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		data, err := wire.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, string(data))
	}
	return out, nil
}

// match checks every field set on want against got. Decimal strings
// compare by value; changes compare in order.
func match(want, got *wire.Record) error {
	w, err := fields(want)
	if err != nil {
		return err
	}
	g, err := fields(got)
	if err != nil {
		return err
	}
	for k, wv := range w {
		if k == "changes" {
			continue
		}
		gv, ok := g[k]
		if !ok {
			return errors.Errorf("%s: missing, want %v", k, wv)
		}
		if !sameValue(wv, gv) {
			return errors.Errorf("%s: got %v, want %v", k, gv, wv)
		}
	}

	if want.Changes == nil {
		return nil
	}
	if len(want.Changes) != len(got.Changes) {
		return errors.Errorf("changes: got %v, want %v", got.Changes, want.Changes)
	}
	for i := range want.Changes {
		wc, gc := want.Changes[i], got.Changes[i]
		if wc.Field != gc.Field || !sameValue(wc.Value, gc.Value) {
			return errors.Errorf("changes[%d]: got %s=%s, want %s=%s", i, gc.Field, gc.Value, wc.Field, wc.Value)
		}
	}
	return nil
}

func fields(r *wire.Record) (map[string]interface{}, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func sameValue(want, got interface{}) bool {
	ws, wok := want.(string)
	gs, gok := got.(string)
	if wok && gok {
		wd, werr := decimal.NewFromString(ws)
		gd, gerr := decimal.NewFromString(gs)
		if werr == nil && gerr == nil {
			return wd.Equal(gd)
		}
		return ws == gs
	}
	return reflect.DeepEqual(want, got)
}
