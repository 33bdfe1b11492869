// Package fallback runs a unit of work against an ordered list of
// connection endpoints, stopping at the first success. This is the only
// place endpoint routing lives; every stage that touches a database goes
// through it so fallback semantics stay identical everywhere.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/authplane/authplane/internal/endpoint"
)

// ErrConnectionExhausted is returned when every endpoint in the list failed.
var ErrConnectionExhausted = errors.New("all connection endpoints exhausted")

// Work is one attempt of a unit of work against a single endpoint.
type Work func(ctx context.Context, ep endpoint.Endpoint) error

// Result records which endpoint satisfied the request and what failed
// along the way.
type Result struct {
	Endpoint endpoint.Endpoint
	Attempts []Attempt
}

// Attempt is the outcome of one endpoint try.
type Attempt struct {
	Endpoint endpoint.Endpoint
	Err      error
}

// Logger receives one line per endpoint attempt. The pipeline passes its
// run-log writer here.
type Logger interface {
	Printf(format string, args ...any)
}

// Run tries work against each endpoint strictly in order, never in
// parallel. It stops at the first success and records that endpoint. When
// every endpoint fails it returns ErrConnectionExhausted wrapping the
// per-endpoint causes.
func Run(ctx context.Context, log Logger, endpoints []endpoint.Endpoint, work Work) (*Result, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints to try", ErrConnectionExhausted)
	}

	result := &Result{}
	var causes []error

	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := work(ctx, ep)
		result.Attempts = append(result.Attempts, Attempt{Endpoint: ep, Err: err})
		if err == nil {
			result.Endpoint = ep
			if log != nil && len(result.Attempts) > 1 {
				log.Printf("succeeded via %s endpoint %s after %d failed attempt(s)", ep.Label, ep.Addr(), len(result.Attempts)-1)
			}
			return result, nil
		}

		if log != nil {
			log.Printf("warning: %s endpoint %s failed: %v", ep.Label, ep.Addr(), err)
		}
		causes = append(causes, fmt.Errorf("%s (%s): %w", ep.Label, ep.Addr(), err))
	}

	return result, fmt.Errorf("%w: %w", ErrConnectionExhausted, errors.Join(causes...))
}
