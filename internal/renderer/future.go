package renderer

import (
	"context"
	"sync"
)

// Future is the pending result of one render. It resolves exactly once.
type Future struct {
	once    sync.Once
	done    chan struct{}
	content string
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve records the result. Calls after the first are ignored.
func (f *Future) resolve(content string, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.content = content
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the render has completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the render completes or ctx is done. A render has no
// timeout of its own.
func (f *Future) Await(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.content, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolved returns a future that has already completed.
func Resolved(content string, err error) *Future {
	f := newFuture()
	f.resolve(content, err)
	return f
}
