package selection

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument is returned by New when a required argument is nil.
	ErrInvalidArgument = errors.New("selection: invalid argument")

	// ErrSealed is returned by every mutating Builder method after Seal.
	ErrSealed = errors.New("selection: sealed selections are read-only")

	// ErrUnsupportedInclusionKind is the panic value of IsIncluded for a kind
	// outside the four defined ones.
	ErrUnsupportedInclusionKind = errors.New("selection: unsupported inclusion kind")

	// ErrInvariant is the panic value for internal consistency violations.
	ErrInvariant = errors.New("selection: invariant violated")
)

func invalidArgument(name string) error {
	return errors.Wrapf(ErrInvalidArgument, "%s must not be nil", name)
}

func sealed(op string) error {
	return errors.Wrapf(ErrSealed, "%s", op)
}
