package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string { return r.name }

// NamedRun attaches a name to a Runnable for logging.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{Runnable: runnable, name: name}
}

// ErrForcedExit is returned by Wait after a second stop signal.
var ErrForcedExit = errors.New("forced exit")

// Runner starts Runnables on goroutines sharing one context and collects
// their results.
type Runner struct {
	Context context.Context

	started int
	results chan error
	forced  chan struct{}
}

// NewRunner creates a Runner on a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner on ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{Context: ctx, results: make(chan error), forced: make(chan struct{})}
}

// HandleSignals cancels the context on SIGINT or SIGTERM. Another signal
// makes Wait give up on the runners still running.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	r.Context = ctx
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stopping", sig)
		cancel()
		<-sigCh
		glog.Error("stop signaled twice, exiting")
		close(r.forced)
	}()
	return r
}

// Go starts each Runnable on its own goroutine.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := strconv.Itoa(r.started)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		r.started++
		go r.run(name, runnable)
	}
	return r
}

func (r *Runner) run(name string, runnable Runnable) {
	glog.V(4).Infof("%s: running", name)
	err := runnable.Run(r.Context)
	glog.V(4).Infof("%s: done: %v", name, err)
	r.results <- err
}

// Wait returns once every started Runnable has returned. Errors other
// than context.Canceled are aggregated.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for ; r.started > 0; r.started-- {
		select {
		case err := <-r.results:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		case <-r.forced:
			return ErrForcedExit
		}
	}
	return errs.Aggregate()
}

// RunWithContextCloser runs fn, which blocks on closer without watching
// ctx. When ctx is done closer is closed to unblock fn and
// context.Canceled is returned. closer is always closed when fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()
	select {
	case err := <-errCh:
		closer.Close()
		return err
	case <-ctx.Done():
		closer.Close()
		<-errCh
		return context.Canceled
	}
}
