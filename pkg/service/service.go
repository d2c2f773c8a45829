package service

import (
	"context"
	"errors"
	"fmt"
)

// Runnable is a long-lived auxiliary component with an explicit start
// and stop, run alongside the session engine for its whole lifetime.
type Runnable interface {
	Run()
	Shutdown(ctx context.Context) error
}

// Group owns a set of runnables and stops them together.
type Group struct {
	list []Runnable
}

func (g *Group) Add(services ...Runnable) { g.list = append(g.list, services...) }

// Start runs every service in the group.
func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

// Shutdown stops every service, collecting failures instead of aborting
// on the first one. A service stopped by context cancellation is not a
// failure.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range g.list {
		if err := s.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("%v: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
