package runner

// Exported aliases for testing internals from the
// runner_test package.

// MirrorRepoNameForTest exposes mirrorRepoName.
var MirrorRepoNameForTest = mirrorRepoName

// MirrorDescriptionForTest exposes mirrorDescription.
var MirrorDescriptionForTest = mirrorDescription

// BaseBranchNameForTest exposes baseBranchName.
var BaseBranchNameForTest = baseBranchName

// PRBranchNameForTest exposes prBranchName.
var PRBranchNameForTest = prBranchName
