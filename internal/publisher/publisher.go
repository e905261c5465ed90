// Package publisher defines the notification publishing contract. Concrete
// implementations live in the memory and pubsub subpackages.
package publisher

import "context"

// Publisher sends a payload tagged with kind and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
}
