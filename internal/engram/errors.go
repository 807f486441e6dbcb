package engram

import "errors"

// Sentinel error kinds per spec.md §7. Wrap with fmt.Errorf("...: %w", Err...)
// at the point of failure and unwrap with errors.Is/errors.As, following the
// convention of the teacher's persistence.ErrNotFound.
var (
	ErrValidation             = errors.New("validation error")
	ErrStore                  = errors.New("store error")
	ErrNotFound               = errors.New("engram not found")
	ErrAllProvidersFailed     = errors.New("all embedding providers failed")
	ErrProviderRateLimited    = errors.New("provider rate limited")
	ErrWriteTimeout           = errors.New("write serializer timeout")
	ErrLegTimeout             = errors.New("retrieval leg timed out")
	ErrLegCrashed             = errors.New("retrieval leg crashed")
	ErrSandboxMode            = errors.New("sandbox mode: operation skipped")
	ErrContradictionCheckFailed = errors.New("contradiction check failed")
)
