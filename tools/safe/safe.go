package safe

import (
	"PPDirect/logger"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
)

// Recover logs a recovered panic so that one broken task does not crash
// the process. It must be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Log.Error("[safe] panic recovered",
			zap.String("task", name),
			zap.Error(errs.ErrPanic(r)),
			zap.Stack("stack"))
	}
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
