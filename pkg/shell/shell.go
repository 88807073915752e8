package shell

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitSignal - block until SIGINT/SIGTERM, nil signal if ctx done first
func WaitSignal(ctx context.Context) os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		return sig
	case <-ctx.Done():
		return nil
	}
}
