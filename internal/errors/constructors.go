package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *DevilDexError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *DevilDexError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Scan boundary errors

func ScanInput(reason string) *DevilDexError {
	return New(CategoryScanInput, SeverityError, "malformed scan input").
		WithContext("reason", reason)
}

func ScanInputWrap(cause error, reason string) *DevilDexError {
	return Wrap(cause, CategoryScanInput, SeverityError, "malformed scan input").
		WithContext("reason", reason)
}

// Scheduling errors

func NoAdapterAvailable(target string) *DevilDexError {
	return New(CategoryScheduler, SeverityError, "no backend adapter available").
		WithContext("target", target)
}

func UnknownTarget(target string) *DevilDexError {
	return New(CategoryScheduler, SeverityWarning, "unknown docset target").
		WithContext("target", target)
}

// Registry errors

func RegistryWrite(cause error, operation string) *DevilDexError {
	return Wrap(cause, CategoryRegistry, SeverityError, "registry write failed").
		WithContext("operation", operation)
}

func DocsetNotFound(target string) *DevilDexError {
	return New(CategoryRegistry, SeverityWarning, "docset not found").
		WithContext("target", target)
}

// Fetch errors

func FetchFailed(pkg string, cause error) *DevilDexError {
	return WrapRetryable(cause, CategoryFetch, SeverityWarning, "package source fetch failed").
		WithContext("package", pkg)
}
