// Package core holds the error taxonomy shared by the patch energy layer.
//
// Four kinds of failure surface to callers, always synchronously:
//
//   - [ErrPrecondition]: the move engine is missing, of the wrong kind, or not attached
//   - [ErrCompilationFailed]: the compiler service rejected a generated unit
//   - [ErrAttachedImmutable]: cutoff, source or array length changed while attached
//   - [ErrInvalidParameter]: non-finite values or mismatched lengths
//
// Every error value carries the operation and field it belongs to. Test the
// kind with errors.Is:
//
//	if errors.Is(err, core.ErrAttachedImmutable) {
//	    _ = pot.Detach()
//	}
package core
