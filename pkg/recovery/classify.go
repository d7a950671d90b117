package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"syscall"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/ratelimit"
)

// Error type names used by classification, severity selection and
// alerting.
const (
	TypeConnection     = "ConnectionError"
	TypeTimeout        = "TimeoutError"
	TypeValidation     = "ValidationError"
	TypeAuthentication = "AuthenticationError"
	TypeRateLimit      = "RateLimitError"
	TypeDatabase       = "DatabaseError"
	TypeExternalAPI    = "ExternalAPIError"
	TypeCircuitOpen    = "CircuitOpenError"
	TypeUnknown        = "UnknownError"
)

// escalationCount is the per-type occurrence count past which log
// severity escalates to Error.
const escalationCount = 100

// Classify names an error for the severity table and alert thresholds.
// Explicitly classified errors (see Validation, Database and friends)
// win; network shapes are recognized next; anything else is named after
// its Go type.
func Classify(err error) string {
	if err == nil {
		return TypeUnknown
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	if breaker.IsOpen(err) {
		return TypeCircuitOpen
	}
	if errors.Is(err, ratelimit.ErrLimited) {
		return TypeRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TypeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) {
		return TypeConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TypeConnection
	}

	return typeName(err)
}

// typeName renders a bare Go type name, without package path or pointer
// markers, for errors nothing else recognizes.
func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return TypeUnknown
	}
	name := t.Name()
	if name == "" {
		name = strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "errorString" || name == "wrapError" {
		return TypeUnknown
	}
	return name
}

var severityTable = map[string]slog.Level{
	TypeValidation:     slog.LevelInfo,
	TypeRateLimit:      slog.LevelInfo,
	TypeTimeout:        slog.LevelWarn,
	TypeAuthentication: slog.LevelWarn,
	TypeCircuitOpen:    slog.LevelWarn,
	TypeExternalAPI:    slog.LevelWarn,
	TypeConnection:     slog.LevelError,
	TypeDatabase:       slog.LevelError,
}

// severityFor selects the log level for an error type. Frequent types
// escalate to Error once their lifetime count passes escalationCount.
func severityFor(errType string, occurrences uint64) slog.Level {
	if occurrences > escalationCount {
		return slog.LevelError
	}
	if level, ok := severityTable[errType]; ok {
		return level
	}
	return slog.LevelError
}
