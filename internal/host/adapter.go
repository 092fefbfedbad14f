// Package host defines the boundary to the widget-hosting service: id
// allocation and reclamation, view binding, and liveness checks.
package host

import (
	"context"
	"errors"

	"github.com/jask/homedeck/internal/placement"
)

var (
	ErrNoCapacity          = errors.New("host: no widget id capacity")
	ErrProviderUnavailable = errors.New("host: provider unavailable")
	ErrAlreadyListening    = errors.New("host: already listening")
	ErrNotListening        = errors.New("host: not listening")
)

// Handle is a live renderable binding for one widget id. It is never
// persisted.
type Handle struct {
	WidgetID int
	Provider placement.ProviderRef
	Token    string
}

// Adapter is the widget host as seen by the page core.
//
// ReclaimID is idempotent. IsValid reports liveness without binding a view.
// BindView binds an unbound id, or rebinds an id to the provider it is
// already bound to; any other provider fails with ErrProviderUnavailable.
type Adapter interface {
	AllocateID(ctx context.Context) (int, error)
	ReclaimID(ctx context.Context, id int) error
	BindView(ctx context.Context, id int, provider placement.ProviderRef) (Handle, error)
	IsValid(ctx context.Context, id int) bool
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
}

// Enumerator is implemented by adapters that can list the ids they have
// handed out and not yet reclaimed.
type Enumerator interface {
	Allocated() []int
}
