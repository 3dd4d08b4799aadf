package persistence

import (
	"context"
	"errors"
)

// MultiSink saves each record to every sink in order. All sinks are tried
// even when one fails; the errors are joined.
type MultiSink []ResultSink

// Save implements ResultSink
func (m MultiSink) Save(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
