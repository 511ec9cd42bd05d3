// Package ref parses pull request references of the form
// https://<host>/<owner>/<repo>/pull/<number>, optionally
// pinned to a single commit with a /commits/<sha> suffix.
package ref

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedRef is returned when a reference string does
// not have the expected pull request URL shape.
var ErrMalformedRef = errors.New(
	"malformed pull request reference",
)

// shortSHALen is the number of leading hex characters used
// when a pinned commit contributes to a branch name.
const shortSHALen = 8

// prRefPattern matches a full pull request URL. The commit
// SHA, when present, must be lowercase hex.
var prRefPattern = regexp.MustCompile(
	`^https://[^/]+/([^/]+)/([^/]+)/pull/(\d+)` +
		`(?:/commits/([0-9a-f]+))?$`,
)

// Ref identifies a pull request, optionally pinned to one
// of its commits. Immutable once parsed.
type Ref struct {
	// Owner is the repository owner as written in the URL.
	Owner string
	// Repo is the repository name as written in the URL.
	Repo string
	// Number is the pull request number.
	Number int
	// CommitSHA is the pinned commit, empty when the
	// reference targets the pull request head.
	CommitSHA string
}

// Parse parses a pull request URL into a Ref. Surrounding
// whitespace is ignored. Any deviation from the expected
// shape fails with ErrMalformedRef carrying the offending
// string.
func Parse(raw string) (Ref, error) {
	const errCtx = "parsing pull request reference"

	groups := prRefPattern.FindStringSubmatch(
		strings.TrimSpace(raw),
	)
	if groups == nil {
		return Ref{}, fmt.Errorf(
			"%s: %w: %q", errCtx, ErrMalformedRef, raw,
		)
	}

	number, err := strconv.Atoi(groups[3])
	if err != nil || number <= 0 {
		return Ref{}, fmt.Errorf(
			"%s: %w: %q", errCtx, ErrMalformedRef, raw,
		)
	}

	return Ref{
		Owner:     groups[1],
		Repo:      groups[2],
		Number:    number,
		CommitSHA: groups[4],
	}, nil
}

// Pinned reports whether the reference targets a specific
// commit rather than the pull request head.
func (r Ref) Pinned() bool {
	return r.CommitSHA != ""
}

// ShortSHA returns the leading hex characters of the pinned
// commit, or empty string when unpinned.
func (r Ref) ShortSHA() string {
	if len(r.CommitSHA) < shortSHALen {
		return r.CommitSHA
	}

	return r.CommitSHA[:shortSHALen]
}
