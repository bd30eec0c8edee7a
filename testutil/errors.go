/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"
)

type tHelper interface {
	Helper()
}

// RequireNoErrorInChannel fails the test if a non-nil error is buffered in c (e.g. a unit's fatal error channel).
// It never blocks.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}

// RequireErrorIsAny fails the test unless errors.Is(err, target) holds for at least one of targets.
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	want := make([]string, 0, len(targets))
	for _, target := range targets {
		if errors.Is(err, target) {
			return
		}
		want = append(want, fmt.Sprintf("%q", target.Error()))
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%q", e.Error()))
	}
	require.FailNow(t, fmt.Sprintf("None of the target errors is in the chain:\n"+
		"targets: [%s]\n"+
		"chain:   [%s]", strings.Join(want, "; "), strings.Join(chain, " -> ")), msgAndArgs...)
}
