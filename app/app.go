package app

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastio/ioselect/config"
	"github.com/fastio/ioselect/selector"
)

// App owns a Selector for its entire lifetime and wires OS signals to an
// orderly shutdown: every registration's Closer gets a chance to finish
// before the Selector itself closes.
type App struct {
	cfg *config.Config
	sel *selector.Selector
}

// New builds the Selector described by cfg and wraps it in an App.
func New(cfg *config.Config) (*App, error) {
	sel, err := selector.New(selector.Config{
		InitialCapacity: cfg.InitialCapacity,
		TraceSyscalls:   cfg.TraceSyscalls,
	})
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, sel: sel}, nil
}

// Selector returns the underlying selector, for a collaborator to register
// descriptors against before calling Run.
func (a *App) Selector() *selector.Selector { return a.sel }

// Run drives a.sel.Wait with onEvent in a loop, in the caller's goroutine,
// until a SIGINT/SIGTERM arrives or onEvent itself returns a non-nil error.
// On shutdown it performs a gentle close before the hard close.
func (a *App) Run(onEvent selector.Callback) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		for {
			if err := a.sel.Wait(selector.Block(), onEvent); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case sig := <-quit:
		log.Printf("signal received: %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("wait: %v", err)
		}
	}

	<-a.sel.GentleClose()
	return a.sel.Close()
}
