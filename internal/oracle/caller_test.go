package oracle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/oracle/oracletest"
)

func newCaller(t *testing.T, m *oracletest.MockOracle, opts ...oracle.CallerOption) *oracle.Caller {
	t.Helper()
	c, err := oracle.NewCaller(m, opts...)
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	if err := c.Initialize(context.Background(), &knowledge.Base{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func answer(conf float64) func(context.Context, oracle.Request) (oracle.Answer, error) {
	return func(context.Context, oracle.Request) (oracle.Answer, error) {
		return oracle.Answer{Text: "worker answer", Confidence: conf}, nil
	}
}

func TestCaller_Ask(t *testing.T) {
	t.Parallel()

	m := &oracletest.MockOracle{ProcessQueryFunc: answer(0.8)}
	c := newCaller(t, m)

	ans, err := c.Ask(context.Background(), oracle.Request{ID: "q1", Query: "react?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "worker answer" {
		t.Errorf("Text = %q", ans.Text)
	}
	if m.InitializeCalls != 1 {
		t.Errorf("InitializeCalls = %d, want 1", m.InitializeCalls)
	}
}

func TestCaller_NotInitialized(t *testing.T) {
	t.Parallel()

	c, err := oracle.NewCaller(&oracletest.MockOracle{ProcessQueryFunc: answer(0.9)})
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	if _, err := c.Ask(context.Background(), oracle.Request{Query: "x"}); !errors.Is(err, oracle.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
	if c.Available() {
		t.Error("uninitialized caller should not be available")
	}
	if h := c.Health(); h.State != oracle.Offline || h.LastReason != "not_initialized" {
		t.Errorf("Health = %+v, want offline/not_initialized", h)
	}
}

func TestCaller_InitializeFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c, _ := oracle.NewCaller(&oracletest.MockOracle{
		InitializeFunc: func(context.Context, *knowledge.Base, oracle.Config) error { return boom },
	})
	if err := c.Initialize(context.Background(), &knowledge.Base{}); !errors.Is(err, boom) {
		t.Errorf("Initialize err = %v, want wrapped boom", err)
	}
}

func TestCaller_NilIsUnavailable(t *testing.T) {
	t.Parallel()

	var c *oracle.Caller
	if _, err := c.Ask(context.Background(), oracle.Request{}); !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if c.Available() {
		t.Error("nil caller should not be available")
	}
	if c.State() != "offline" {
		t.Errorf("State = %q, want offline", c.State())
	}
}

func TestCaller_LowConfidence(t *testing.T) {
	t.Parallel()

	c := newCaller(t, &oracletest.MockOracle{ProcessQueryFunc: answer(0.3)})
	ans, err := c.Ask(context.Background(), oracle.Request{ID: "q"})
	if !errors.Is(err, oracle.ErrLowConfidence) {
		t.Fatalf("err = %v, want ErrLowConfidence", err)
	}
	if ans.Confidence != 0.3 {
		t.Errorf("low-confidence answer should be returned, got %+v", ans)
	}
	if !c.Available() {
		t.Error("a low-confidence answer is not a health failure")
	}
}

func TestCaller_Timeout(t *testing.T) {
	t.Parallel()

	m := &oracletest.MockOracle{
		ProcessQueryFunc: func(ctx context.Context, _ oracle.Request) (oracle.Answer, error) {
			<-ctx.Done()
			return oracle.Answer{}, ctx.Err()
		},
	}
	c := newCaller(t, m, oracle.WithBackoff(oracle.BackoffPolicy{Initial: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Ask(ctx, oracle.Request{ID: "slow"})
	if !errors.Is(err, oracle.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := oracle.Reason(err); got != "timeout" {
		t.Errorf("Reason = %q, want timeout", got)
	}
}

func TestCaller_FailureTriggersBackoff(t *testing.T) {
	t.Parallel()

	m := &oracletest.MockOracle{
		ProcessQueryFunc: func(context.Context, oracle.Request) (oracle.Answer, error) {
			return oracle.Answer{}, errors.New("worker crashed")
		},
	}
	c := newCaller(t, m, oracle.WithBackoff(oracle.BackoffPolicy{Initial: time.Hour}))

	if _, err := c.Ask(context.Background(), oracle.Request{ID: "a"}); err == nil {
		t.Fatal("expected error")
	}
	if h := c.Health(); h.State != oracle.Backoff || h.LastReason != "error" || h.Failures != 1 {
		t.Errorf("Health = %+v, want backoff after one error", h)
	}

	_, err := c.Ask(context.Background(), oracle.Request{ID: "b"})
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable while backing off", err)
	}
	if m.Calls() != 1 {
		t.Errorf("oracle called %d times, want 1", m.Calls())
	}
}

func TestCaller_SingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var started atomic.Int32
	m := &oracletest.MockOracle{
		ProcessQueryFunc: func(context.Context, oracle.Request) (oracle.Answer, error) {
			started.Add(1)
			<-release
			return oracle.Answer{Text: "shared", Confidence: 0.9}, nil
		},
	}
	c := newCaller(t, m)

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans, err := c.Ask(context.Background(), oracle.Request{ID: "same"})
			if err != nil {
				t.Errorf("Ask: %v", err)
			}
			results[i] = ans.Text
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for started.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := m.Calls(); got != 1 {
		t.Errorf("oracle called %d times, want 1", got)
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("result[%d] = %q", i, r)
		}
	}
}

func TestCaller_HealthCheckRevives(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	m := &oracletest.MockOracle{
		ProcessQueryFunc: func(context.Context, oracle.Request) (oracle.Answer, error) {
			return oracle.Answer{}, errors.New("down")
		},
		HealthCheckFunc: func(context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("still down")
		},
	}
	c := newCaller(t, m, oracle.WithBackoff(oracle.BackoffPolicy{
		MaxFailures:   1,
		CheckInterval: 5 * time.Millisecond,
	}))

	_, _ = c.Ask(context.Background(), oracle.Request{ID: "x"})
	if c.State() != "offline" {
		t.Fatalf("State = %q, want offline", c.State())
	}

	c.Start(context.Background())
	defer c.Stop()
	healthy.Store(true)

	deadline := time.Now().Add(2 * time.Second)
	for !c.Available() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.Available() {
		t.Error("a passing health check should bring the oracle back")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     oracle.Config
		wantErr bool
	}{
		{name: "zero uses defaults", cfg: oracle.Config{}},
		{name: "in range", cfg: oracle.Config{Timeout: 15 * time.Second, MinConfidence: 0.6}},
		{name: "too short", cfg: oracle.Config{Timeout: time.Second}, wantErr: true},
		{name: "too long", cfg: oracle.Config{Timeout: time.Minute}, wantErr: true},
		{name: "confidence above one", cfg: oracle.Config{MinConfidence: 1.5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			var cerr *oracle.ConfigError
			if tt.wantErr && !errors.As(err, &cerr) {
				t.Errorf("error %T is not *ConfigError", err)
			}
		})
	}
}

func TestReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{oracle.ErrUnavailable, "unavailable"},
		{oracle.ErrNotInitialized, "not_initialized"},
		{oracle.ErrLowConfidence, "low_confidence"},
		{errors.New("x"), "error"},
	}
	for _, tt := range tests {
		if got := oracle.Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
