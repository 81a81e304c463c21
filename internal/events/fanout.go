package events

import (
	"context"
	"errors"

	"verida.org/internal/contract"
)

// Fanout delivers each event to every publisher and joins their errors.
type Fanout []contract.Publisher

func (f Fanout) Publish(ctx context.Context, evt contract.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
