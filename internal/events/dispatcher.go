package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/pkg/logger"
)

// Name identifies an authentication lifecycle event.
type Name string

const (
	Registered    Name = "registered"
	Verified      Name = "verified"
	PasswordReset Name = "password_reset"
	Login         Name = "login"
	Logout        Name = "logout"
	Lockout       Name = "lockout"
	Failed        Name = "failed"
)

// Event carries the guard and principal an auth event concerns. PrincipalID is
// empty for Lockout and Failed when no principal matched.
type Event struct {
	Name        Name
	Guard       string
	PrincipalID string
	Email       string
	Remember    bool
	OccurredAt  time.Time
}

// Listener observes dispatched events. Errors are collected and logged; they
// never fail the operation that raised the event.
type Listener func(ctx context.Context, event Event) error

// Dispatcher fans events out to listeners registered per event name.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[Name][]Listener
	clock     func() time.Time
	log       *zap.Logger
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[Name][]Listener),
		clock:     time.Now,
		log:       logger.WithModule("events"),
	}
}

// Listen registers listener for name. Listeners run in registration order.
func (d *Dispatcher) Listen(name Name, listener Listener) {
	if d == nil || listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], listener)
}

// Dispatch delivers event synchronously and returns the combined listener
// errors. A panicking listener is converted into an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.clock()
	}

	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners[event.Name]...)
	d.mu.RUnlock()

	var errs error
	for _, listener := range listeners {
		errs = multierr.Append(errs, invoke(ctx, listener, event))
	}
	if errs != nil {
		d.log.Warn("event listener failed",
			zap.String("event", string(event.Name)),
			zap.String("guard", event.Guard),
			zap.Error(errs),
		)
	}
	return errs
}

func invoke(ctx context.Context, listener Listener, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener(ctx, event)
}
