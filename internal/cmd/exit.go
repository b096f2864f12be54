package cmd

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
)

// Semantic exit codes, kept stable for scripts wrapping the CLI.
const (
	ExitFailure       = 1
	ExitConfigInvalid = 3
	ExitUnavailable   = 69 // EX_UNAVAILABLE: server not reachable
)

// ExitCodeFor maps a command error to the exit code the process should use.
func ExitCodeFor(err error) int {
	var env *apperrors.Envelope
	if errors.As(err, &env) && env != nil {
		switch env.Code {
		case apperrors.CodeConfigInvalid:
			return ExitConfigInvalid
		case apperrors.CodeServiceUnavailable:
			return ExitUnavailable
		}
	}
	return ExitFailure
}

// ExitWithCode logs the error through the supplied logger and exits with the
// given code. Pass a nil logger for failures before logger initialization.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(code, msg, err)
		return
	}
	fields := []zap.Field{zap.Int("exit_code", code)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Error(msg, fields...)
	_ = logger.Sync()
	os.Exit(code)
}

// ExitWithCodeStderr writes the error to stderr and exits. Use when no
// logger is available yet.
func ExitWithCodeStderr(code int, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	os.Exit(code)
}
