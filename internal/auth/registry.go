package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// Verifier extracts credentials from a request and checks them. It returns
// an *Error for credential failures and a plain error for infrastructure
// failures such as an unreachable store.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (Principal, error)
}

// VerifierFunc adapts a function to Verifier
type VerifierFunc func(ctx context.Context, r *http.Request) (Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, r *http.Request) (Principal, error) {
	return f(ctx, r)
}

// Strategy is a named Verifier
type Strategy struct {
	name     string
	verifier Verifier
}

// NewStrategy names a verifier for registration
func NewStrategy(name string, v Verifier) Strategy {
	return Strategy{name: name, verifier: v}
}

func (s Strategy) Name() string {
	return s.name
}

func (s Strategy) Verify(ctx context.Context, r *http.Request) (Principal, error) {
	return s.verifier.Verify(ctx, r)
}

// Registry maps strategy names to strategies. It is built once at startup
// and only read afterwards, so it needs no locking.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an immutable registry. Empty or duplicate names and
// nil verifiers are rejected.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if s.name == "" {
			return nil, errors.New("strategy name is required")
		}
		if s.verifier == nil {
			return nil, fmt.Errorf("strategy %q has no verifier", s.name)
		}
		if _, exists := r.strategies[s.name]; exists {
			return nil, fmt.Errorf("strategy %q registered twice", s.name)
		}
		r.strategies[s.name] = s
	}
	return r, nil
}

// Resolve looks a strategy up by name. Callers resolve while wiring routes
// so an unknown name stops the process before it serves traffic.
func (r *Registry) Resolve(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return Strategy{}, newError(KindStrategyNotFound, fmt.Errorf("strategy %q is not registered", name))
	}
	return s, nil
}

// Names returns the registered strategy names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FirstOf tries verifiers in order. A verifier reporting NoSessionFound
// has no credentials to check and the next one is tried; any other outcome
// stops the chain. When every verifier abstains the result is NoSessionFound.
func FirstOf(verifiers ...Verifier) Verifier {
	return VerifierFunc(func(ctx context.Context, r *http.Request) (Principal, error) {
		for _, v := range verifiers {
			p, err := v.Verify(ctx, r)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrNoSessionFound) {
				return Principal{}, err
			}
		}
		return Principal{}, newError(KindNoSessionFound, nil)
	})
}
