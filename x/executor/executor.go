package executor

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Executor runs callbacks on behalf of the caller that registered them.
// Post must not block on the task itself.
type Executor interface {
	Post(task func())
}

// Inline runs tasks on the posting goroutine. Useful for tests and for
// callers that already hand work off themselves.
type Inline struct {
	Log zerolog.Logger
}

func (e Inline) Post(task func()) {
	Safe(e.Log, task)
}

// Go runs every task on its own goroutine. Ordering is not preserved.
type Go struct {
	Log zerolog.Logger
}

func (e Go) Post(task func()) {
	go Safe(e.Log, task)
}

// Safe runs task and logs a panic instead of propagating it.
func Safe(log zerolog.Logger, task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Callback panicked")
		}
	}()
	task()
}
