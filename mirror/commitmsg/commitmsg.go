// Package commitmsg renders and parses the messages the
// mirroring workflow writes: materialization commit
// messages and the provenance footer appended to mirrored
// pull request bodies.
package commitmsg

import (
	"regexp"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Kind names the materialization variant recorded in a
// commit message.
type Kind string

const (
	// KindOrphan marks a parentless base-state commit.
	KindOrphan Kind = "Orphan"
	// KindPRChanges marks a commit layering pull request
	// content on a base-state branch.
	KindPRChanges Kind = "PR Changes"
)

const (
	materializationTpl = "[{{KIND}}] Commit {{SHA}}"

	footerTpl = "{{BODY}}\n\n---\n" +
		"**Original PR:** `{{URL}}`"
)

// materializationRe recovers the commit SHA from a
// materialization message.
var materializationRe = regexp.MustCompile(
	`^\[(?:Orphan|PR Changes)\] Commit ([0-9a-f]+)`,
)

// Materialization renders the commit message for a
// materialized tree.
func Materialization(kind Kind, sha string) string {
	return fasttemplate.ExecuteStringStd(
		materializationTpl, "{{", "}}",
		map[string]any{
			"KIND": string(kind),
			"SHA":  sha,
		},
	)
}

// ParseSHA extracts the source commit SHA from a
// materialization message. Returns empty string when the
// message was not written by Materialization.
func ParseSHA(msg string) string {
	groups := materializationRe.FindStringSubmatch(
		strings.TrimSpace(msg),
	)
	if groups == nil {
		return ""
	}

	return groups[1]
}

// Footer appends the provenance footer linking back to the
// original pull request to a (possibly empty) body.
func Footer(body string, originalURL string) string {
	return fasttemplate.ExecuteStringStd(
		footerTpl, "{{", "}}",
		map[string]any{
			"BODY": body,
			"URL":  originalURL,
		},
	)
}
