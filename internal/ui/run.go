package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

// Run drives ctrl interactively until the user quits or ctx ends. A cancelled
// parent context is reported as its error; a normal quit returns nil.
func Run(ctx context.Context, ctrl Controller, opts Options) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rep := newTeaReporter()
	prog := tea.NewProgram(NewModel(runCtx, ctrl, opts), tea.WithContext(runCtx))
	ctrl.Subscribe(rep)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		_, err := prog.Run()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	// Pump controller events into the program; Send returns once the
	// program has exited, so this never outlives it.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-rep.wake:
				prog.Send(rep.drain())
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
