package link

import (
	"errors"
	"fmt"
	"log/slog"
)

// Closer is a named resource released at shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// CloseAll releases every resource in order. A failing or panicking close
// does not stop the remaining ones; all failures are joined into the
// returned error.
func CloseAll(log *slog.Logger, closers ...Closer) error {
	if log == nil {
		log = slog.Default()
	}
	var errs []error
	for _, c := range closers {
		if c.Close == nil {
			continue
		}
		if err := closeOne(c); err != nil {
			log.Error("shutdown: close failed", "resource", c.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		log.Debug("shutdown: closed", "resource", c.Name)
	}
	return errors.Join(errs...)
}

func closeOne(c Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic during close: %v", c.Name, r)
		}
	}()
	if err := c.Close(); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}
