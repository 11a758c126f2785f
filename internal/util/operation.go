package util

import (
	"context"
	"fmt"

	"github.com/adatao/ddf"
	"github.com/apache/arrow-go/v18/arrow"
)

// SafeLocalTransform wraps a LocalFn such that panics are recovered and nice error messages are constructed
func SafeLocalTransform(fn ddf.LocalFn) ddf.LocalFn {
	return func(ctx context.Context, rec arrow.Record) (out arrow.Record, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Transform Panic: %w\n%s", anErr, GetTrace())
				} else {
					err = fmt.Errorf("Transform Panic: %v\n%s", r, GetTrace())
				}
			}
		}()
		out, err = fn(ctx, rec)
		return
	}
}
