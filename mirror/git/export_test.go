package git

// Exported aliases for testing internals from the git_test
// package.

// OrphanFromURLsForTest exposes (*Materializer).orphan so
// tests can materialize against local fixture paths.
var OrphanFromURLsForTest = (*Materializer).orphan

// FromBaseFromURLsForTest exposes
// (*Materializer).fromBase.
var FromBaseFromURLsForTest = (*Materializer).fromBase

// SourceURLForTest exposes (*Materializer).sourceURL.
var SourceURLForTest = (*Materializer).sourceURL

// MirrorURLForTest exposes (*Materializer).mirrorURL.
var MirrorURLForTest = (*Materializer).mirrorURL
