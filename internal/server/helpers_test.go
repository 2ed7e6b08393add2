package server

import "github.com/pkg/errors"

func wrapCause() error {
	return errors.Wrap(errors.New("dial tcp 10.0.0.1:8080: connection refused"), "catalog service unreachable")
}
