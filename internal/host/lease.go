package host

import (
	"context"
	"sync"
)

// Lease brackets an adapter's listening period. Release stops listening
// exactly once no matter how many times it is called.
type Lease struct {
	adapter Adapter
	once    sync.Once
	err     error
}

// Acquire starts listening on a and returns the lease that ends it.
func Acquire(ctx context.Context, a Adapter) (*Lease, error) {
	if err := a.StartListening(ctx); err != nil {
		return nil, err
	}
	return &Lease{adapter: a}, nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.adapter.StopListening(ctx)
	})
	return l.err
}
