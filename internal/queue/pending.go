package queue

import "context"

// Pending completes when a queue drains or one of its cycles fails.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved returns a Pending that has already completed successfully.
func Resolved() *Pending {
	p := newPending()
	p.finish(nil)
	return p
}

// Failed returns a Pending that has already completed with err.
func Failed(err error) *Pending {
	p := newPending()
	p.finish(err)
	return p
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Err is only meaningful once Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.err
	}
}

// All completes when every p has completed, or as soon as one fails.
func All(ps ...*Pending) *Pending {
	switch len(ps) {
	case 0:
		return Resolved()
	case 1:
		return ps[0]
	}
	out := newPending()
	go func() {
		for _, p := range ps {
			<-p.done
			if p.err != nil {
				out.finish(p.err)
				return
			}
		}
		out.finish(nil)
	}()
	return out
}
