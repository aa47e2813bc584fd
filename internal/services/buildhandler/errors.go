package buildhandler

// Stable reason strings recorded in logs and results. Clients key off
// them, so they must not change.
const (
	ReasonNotValidDirectory     = "The directory is not valid"
	ReasonCantFindBuildFile     = "Couldn't find the build file in the directory"
	ReasonNoTestsFound          = "No tests found"
	ReasonFailedToCompile       = "Failed to compile"
	ReasonFailedToTest          = "Failed to test"
	ReasonNoTestResults         = "Failed to extract test results"
	ReasonCantExecJacoco        = "Couldn't execute jacoco"
	ReasonCantInjectJacoco      = "Couldn't inject jacoco in the build file"
	ReasonNoCoverageReport      = "No coverage report was found"
	ReasonFileNotCovered        = "Commented file from the PR wasn't not covered"
	ReasonNotJavaFile           = "File that was checked for coverage was not java file"
	ReasonNoPackageFound        = "Java file did not contain a valid package name"
	ReasonFileNotFoundInRepo    = "Commented file not found in repo (likely renamed or deleted)"
)

// SetupError reports that a repository snapshot could not be turned into
// a working build handler. The affected submission entry is skipped.
type SetupError struct {
	Reason string // one of the Reason constants
	Detail string
}

func (e *SetupError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Detail
}

// HandlerError reports a failure of one build step. Its message ends up
// in the per-entry results as <step>_error_msg.
type HandlerError struct {
	Reason string // one of the Reason constants
	Detail string
}

func (e *HandlerError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Detail
}

func errNotValidDirectory(detail string) *SetupError {
	return &SetupError{Reason: ReasonNotValidDirectory, Detail: detail}
}

func errCantFindBuildFile(detail string) *SetupError {
	return &SetupError{Reason: ReasonCantFindBuildFile, Detail: detail}
}

func errFailedToCompile(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonFailedToCompile, Detail: detail}
}

func errFailedToTest(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonFailedToTest, Detail: detail}
}

func errNoTestResults(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonNoTestResults, Detail: detail}
}

func errCantExecJacoco(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonCantExecJacoco, Detail: detail}
}

func errCantInjectJacoco(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonCantInjectJacoco, Detail: detail}
}

func errNoCoverageReport(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonNoCoverageReport, Detail: detail}
}

func errFileNotCovered(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonFileNotCovered, Detail: detail}
}

func errNotJavaFile(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonNotJavaFile, Detail: detail}
}

func errNoPackageFound(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonNoPackageFound, Detail: detail}
}

func errFileNotFoundInRepo(detail string) *HandlerError {
	return &HandlerError{Reason: ReasonFileNotFoundInRepo, Detail: detail}
}
