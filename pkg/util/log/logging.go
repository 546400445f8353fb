package log

import (
	"fmt"
	"io"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-stack/stack"
)

const (
	// LevelInfo is the threshold used when debugging is off.
	LevelInfo = 1
	// LevelDebug lets "v"=2 lines through.
	LevelDebug = 2
)

func NewLogger(debug bool) kitlog.Logger {
	level := LevelInfo
	if debug {
		level = LevelDebug
	}
	return NewLoggerTo(os.Stdout, level)
}

func NewLoggerTo(w io.Writer, level int) kitlog.Logger {
	var logger kitlog.Logger

	logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	logger = NewTrailingNilFilter(logger)
	logger = NewLevelFilter(level, logger)
	logger = NewErrorOrigin(logger)
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", Caller(3))

	return logger
}

func Caller(depth int) kitlog.Valuer {
	return func() interface{} { return fmt.Sprintf("%+v", stack.Caller(depth)) }
}
