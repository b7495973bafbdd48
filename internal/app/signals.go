package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// HandleSignals closes the service when one of sigs (SIGINT and SIGTERM by
// default) arrives, then cancels the returned context. Calling the returned
// cancel function stops listening.
func (s *Service) HandleSignals(ctx context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer signal.Stop(ch)
		s.watch(ctx, ch, cancel)
	}()
	return ctx, cancel
}

func (s *Service) watch(ctx context.Context, ch <-chan os.Signal, cancel context.CancelFunc) {
	select {
	case sig := <-ch:
		s.log.Info().Str("signal", sig.String()).Msg("shutting down")
		s.Close()
		cancel()
	case <-ctx.Done():
	}
}
