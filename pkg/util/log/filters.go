package log

import (
	"fmt"

	kitlog "github.com/go-kit/log"
	"github.com/pkg/errors"
)

var levelKey interface{} = "v"

// ErrLevelType is returned for a "v" value that is not an int.
var ErrLevelType = errors.New("level value is not of expected type (int)")

type levelFilter struct {
	threshold int
	next      kitlog.Logger
}

// NewLevelFilter drops lines whose "v" value is above the threshold.
// Lines without a "v" key are always passed on.
func NewLevelFilter(threshold int, logger kitlog.Logger) kitlog.Logger {
	return &levelFilter{threshold: threshold, next: logger}
}

func (l levelFilter) Log(keyvals ...interface{}) error {
	for i := len(keyvals) - 2; i >= 0; i -= 2 {
		if keyvals[i] != levelKey {
			continue
		}
		lvl, ok := keyvals[i+1].(int)
		if !ok {
			return ErrLevelType
		}
		if lvl > l.threshold {
			return nil
		}
		break
	}
	return l.next.Log(keyvals...)
}

type nilFilter struct {
	next kitlog.Logger
}

// NewTrailingNilFilter strips trailing pairs with a nil value, so that
// deferred `"err", err` pairs do not print err=null.
func NewTrailingNilFilter(logger kitlog.Logger) kitlog.Logger {
	return &nilFilter{next: logger}
}

func (l nilFilter) Log(keyvals ...interface{}) error {
	end := len(keyvals)
	for end > 1 && end%2 == 0 && keyvals[end-1] == nil {
		end -= 2
	}
	return l.next.Log(keyvals[:end]...)
}

type errorOrigin struct {
	next kitlog.Logger
}

// NewErrorOrigin appends an "origin" pair with the innermost stack frame of
// the first logged error created through github.com/pkg/errors.
func NewErrorOrigin(logger kitlog.Logger) kitlog.Logger {
	return &errorOrigin{next: logger}
}

func (l errorOrigin) Log(keyvals ...interface{}) error {
	for i := 1; i < len(keyvals); i += 2 {
		err, ok := keyvals[i].(error)
		if !ok {
			continue
		}
		if st := originalStackTrace(err); len(st) > 0 {
			keyvals = append(keyvals, "origin", fmt.Sprintf("%v", st[0]))
			break
		}
	}
	return l.next.Log(keyvals...)
}

func originalStackTrace(err error) (st errors.StackTrace) {
	type causer interface {
		Cause() error
	}
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			st = tracer.StackTrace()
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return st
}
