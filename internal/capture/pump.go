package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/streamgear/internal/frame"
)

// Sink consumes frames. streamgear.Session implements it.
type Sink interface {
	Feed(f *frame.Frame) error
}

// Pump reads frames from src and feeds them to sink until src is
// exhausted, limit frames have been fed (0 is unlimited) or ctx is done.
// Reading and feeding run in separate goroutines with a small buffer
// between them, so a slow decoder and a back-pressured encoder overlap.
// It returns the number of frames fed. A cancelled ctx is not an error.
func Pump(ctx context.Context, src Source, sink Sink, limit int) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan *frame.Frame, 2)

	g.Go(func() error {
		defer close(frames)
		for n := 0; limit <= 0 || n < limit; n++ {
			f, err := src.Read(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read frame: %w", err)
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	fed := 0
	g.Go(func() error {
		for f := range frames {
			if err := sink.Feed(f); err != nil {
				return fmt.Errorf("feed frame %d: %w", fed, err)
			}
			fed++
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return fed, err
}
