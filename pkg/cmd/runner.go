package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
)

// Runner returns a run group with a signal actor and a context that is
// cancelled when the group is interrupted.
func Runner() (*run.Group, context.Context) {
	var g run.Group
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})

	g.Add(func() error {
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			return context.Canceled
		case <-done:
			return nil
		}
	}, func(error) {
		cancel()
		close(done)
	})
	return &g, ctx
}
