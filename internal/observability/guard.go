package observability

import (
	"github.com/sourcegraph/conc/panics"
)

// Guard runs fn and recovers any panic it raises. The failure is logged at
// error level with the callback description and reported as the return value.
// A nil logger falls back to the global one.
func Guard(logger Logger, what string, fn func(), fields ...Field) (failed bool) {
	if fn == nil {
		return false
	}
	var pc panics.Catcher
	pc.Try(fn)
	recovered := pc.Recovered()
	if recovered == nil {
		return false
	}
	if logger == nil {
		logger = Log()
	}
	logFields := make([]Field, 0, len(fields)+3)
	logFields = append(logFields, fields...)
	logFields = append(logFields,
		Field{Key: "callback", Value: what},
		Field{Key: "panic", Value: recovered.Value},
		Field{Key: "stack", Value: string(recovered.Stack)},
	)
	logger.Error("callback failed", logFields...)
	return true
}
