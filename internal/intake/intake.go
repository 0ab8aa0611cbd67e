// Package intake resolves the object token in an inbound mail address,
// e.g. "COMMIT123+abc@reply.example.com", to the object it names.
//
// Nothing in this repository receives mail. Receiver is the library seam an
// external mail pipeline calls with its own lookup.
package intake

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoToken = errors.New("address carries no object token")

var tokenRe = regexp.MustCompile(`^COMMIT([1-9][0-9]*)$`)

// ParseToken returns the ID in a bare "COMMIT<n>" token. Matching ignores
// case since mail systems do not preserve it reliably.
func ParseToken(token string) (int64, error) {
	m := tokenRe.FindStringSubmatch(strings.ToUpper(token))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrNoToken, token)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoToken, token)
	}
	return id, nil
}

// LookupFunc loads the object behind a token. It should return an error
// wrapping a not-found sentinel when the ID does not exist.
type LookupFunc[T any] func(ctx context.Context, id int64) (T, error)

type Receiver[T any] struct {
	lookup LookupFunc[T]
}

func NewReceiver[T any](lookup LookupFunc[T]) *Receiver[T] {
	return &Receiver[T]{lookup: lookup}
}

// Resolve extracts the token from the local part of address, ignoring any
// "+suffix" and domain, and loads the object it names.
func (r *Receiver[T]) Resolve(ctx context.Context, address string) (T, error) {
	var zero T

	local, _, _ := strings.Cut(strings.TrimSpace(address), "@")
	local, _, _ = strings.Cut(local, "+")

	id, err := ParseToken(local)
	if err != nil {
		return zero, err
	}
	obj, err := r.lookup(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("resolve %s: %w", local, err)
	}
	return obj, nil
}
