package ledger

import "context"

// Refresh is the pending outcome of a recommendation refresh that runs
// after a credit has committed.
type Refresh struct {
	done chan struct{}
	text string
	err  error
}

func newRefresh() *Refresh {
	return &Refresh{done: make(chan struct{})}
}

func (r *Refresh) finish(text string, err error) {
	r.text, r.err = text, err
	close(r.done)
}

// Done is closed once the refresh has finished.
func (r *Refresh) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the refresh finishes or ctx is done. It returns the
// stored recommendation, or the error that prevented storing it.
func (r *Refresh) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
