package app

import (
	"context"
	"fmt"
	"image"
)

// Record runs the pipeline until n composites have been produced and hands
// each one to fn. A composite is the detection layer with the mesh layer
// drawn over it, taken whenever the mesh surface renders. It fails with
// pump.ErrSourceEnded when the source runs out of frames first.
func (a *App) Record(ctx context.Context, n int, fn func(i int, img *image.RGBA) error) error {
	if a.pump == nil {
		a.mu.Lock()
		err := a.sourceErr
		a.mu.Unlock()
		if err == nil {
			err = ErrNoBackend
		}
		return fmt.Errorf("record: capture unavailable: %w", err)
	}

	ch := make(chan *image.RGBA, 1)
	a.mu.Lock()
	a.composites = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.composites = nil
		a.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	for i := 0; i < n; {
		select {
		case img := <-ch:
			if err := fn(i, img); err != nil {
				cancel()
				<-done
				return err
			}
			i++
		case <-a.ended:
			cancel()
			<-done
			a.mu.Lock()
			err := a.sourceErr
			a.mu.Unlock()
			return fmt.Errorf("record: %d of %d composites: %w", i, n, err)
		case err := <-done:
			if err == nil {
				err = ctx.Err()
			}
			return err
		}
	}

	cancel()
	return <-done
}
