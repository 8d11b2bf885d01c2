// Package activity models the per-node activity logs reported by an eno
// control server and the predicates used to pick records out of them.
//
// Nothing in this package performs I/O. Logs are snapshots decoded from a
// single query; they are never cached or merged across queries.
package activity

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a malformed kind or predicate. It is always
// detected locally, before any request is made.
var ErrInvalidArgument = errors.New("invalid argument")

// Kind is one of the observable activity categories.
type Kind string

const (
	KindSMS  Kind = "sms"
	KindCall Kind = "call"
	KindData Kind = "data"
)

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSMS, KindCall, KindData}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSMS, KindCall, KindData:
		return true
	}
	return false
}

// Check returns ErrInvalidArgument when k is not a supported kind.
func (k Kind) Check() error {
	if !k.Valid() {
		return fmt.Errorf("%w: unsupported activity kind %q (want sms, call or data)", ErrInvalidArgument, string(k))
	}
	return nil
}

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if err := k.Check(); err != nil {
		return "", err
	}
	return k, nil
}
