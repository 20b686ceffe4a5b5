package output

import (
	"context"
	"errors"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

type multiSink []scraper.ResultSink

// Multi fans a report out to every sink. All sinks run even when one fails;
// the failures are joined.
func Multi(sinks ...scraper.ResultSink) scraper.ResultSink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Write(ctx context.Context, report scraper.RunReport) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
