// Package git drives the git executable to reconstruct
// commit trees inside mirror repositories.
//
// Repo wraps a local work tree with the narrow set of
// operations the mirroring workflow needs: cloning,
// branching, archiving a commit's tree, replacing a work
// tree wholesale, committing, and pushing. Every failed
// operation reports a *StepError naming the git step that
// failed.
//
// Materializer is the branch materialization engine. Its
// two variants build a branch holding the exact tree of a
// source commit: Orphan starts a new parentless history,
// FromBase layers the tree as a child commit of an
// existing branch tip. All local work happens in a scratch
// directory created per call and discarded unconditionally.
package git
