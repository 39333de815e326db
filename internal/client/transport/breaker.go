package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/dmitrijs2005/voicescreen/internal/logging"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = gobreaker.ErrOpenState

var errServerStatus = errors.New("server error status")

type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BreakerDoer puts a circuit breaker in front of a Doer. Transport errors
// and 5xx responses count as failures; a 5xx response is still handed back
// to the caller unchanged so the server's message is not lost.
type BreakerDoer struct {
	next    Doer
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewBreakerDoer wraps next. When reg is non-nil a gauge
// voicescreen_circuit_breaker_state{name} is registered on it.
func NewBreakerDoer(next Doer, cfg BreakerConfig, reg prometheus.Registerer, log logging.Logger) (*BreakerDoer, error) {
	if log == nil {
		log = logging.Nop()
	}

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicescreen_circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
	if reg != nil {
		if err := reg.Register(state); err != nil {
			return nil, fmt.Errorf("register breaker metrics: %w", err)
		}
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			state.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	state.WithLabelValues(cfg.Name).Set(0)

	return &BreakerDoer{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}, nil
}

func (b *BreakerDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := b.breaker.Execute(func() (*http.Response, error) {
		resp, err := b.next.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}

func (b *BreakerDoer) State() gobreaker.State {
	return b.breaker.State()
}
