package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/vpipeline/logger"
)

// SetLeakFinalizer reports objects that became unreachable while still
// holding an external resource (isLeaked returns true).
func SetLeakFinalizer[T any](
	ctx context.Context,
	obj *T,
	isLeaked func(*T) bool,
) {
	runtime.SetFinalizer(obj, func(obj *T) {
		if !isLeaked(obj) {
			return
		}
		logger.Errorf(ctx, "%T was garbage collected without being released", obj)
	})
}
