// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"errors"
	"fmt"
)

// TL error codes carried by [Error] values.
const (
	ErrorSyntax            int32 = -1000
	ErrorExtraData         int32 = -1001
	ErrorHeader            int32 = -1002
	ErrorWrongQueryID      int32 = -1003
	ErrorUnknownFunctionID int32 = -2000
	ErrorProxyNoTarget     int32 = -2001
	ErrorWrongActorID      int32 = -2002
	ErrorTooLongString     int32 = -2003
	ErrorValueNotInRange   int32 = -2004
	ErrorQueryIncorrect    int32 = -2005
	ErrorBadValue          int32 = -2006
	ErrorBinlogDisabled    int32 = -2007
	ErrorFeatureDisabled   int32 = -2008
	ErrorQueryTimeout      int32 = -3000
	ErrorInvalidConnection int32 = -3001
	ErrorNoConnections     int32 = -3002
	ErrorInternal          int32 = -3003
	ErrorUnknown           int32 = -4000
)

// Error is a structured {message, code} failure. Every fetch-time and
// query-time failure surfaces as an *Error; none escape as panics.
type Error struct {
	Message string
	Code    int32
}

func (e *Error) Error() string {
	return fmt.Sprintf("tlrpc: %s (code %d)", e.Message, e.Code)
}

func newError(code int32, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Code: code}
}

// Codec errors. Codes follow the runtime fetch convention.
var (
	ErrNotEnoughData   = &Error{Message: "Not enough data to fetch", Code: -1}
	ErrTooMuchData     = &Error{Message: "Too much data to fetch", Code: -2}
	ErrBadStringHeader = &Error{Message: "Can't fetch string, 255 found", Code: -3}
	ErrUnalignedResult = &Error{Message: "Result's length is not divisible by 4", Code: -4}
)

var (
	ErrInvalidConnection = errors.New("tlrpc: invalid connection")
	ErrNestedParse       = errors.New("tlrpc: parse backup slot already in use")
	ErrStringTooLong     = errors.New("tlrpc: string too long to store")
	ErrUnalignedRaw      = errors.New("tlrpc: raw data length is not divisible by 4")
	ErrNotTLObject       = errors.New("tlrpc: not an object passed to query")
	ErrUnknownFunction   = errors.New("tlrpc: function not found in tl-scheme")
	ErrStoreManyPattern  = errors.New("tlrpc: wrong store_many pattern")
	ErrClosed            = errors.New("tlrpc: transport closed")
)

// StoringError reports a failure while encoding a named TL function.
// It is raised before any network use.
type StoringError struct {
	Function string
	Err      error
}

func (e *StoringError) Unwrap() error {
	return e.Err
}

func (e *StoringError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("tlrpc: storing error: %v", e.Err)
	}
	return fmt.Sprintf("tlrpc: storing error in %q: %v", e.Function, e.Err)
}

// AsError normalizes err into an *Error. A nil err yields nil.
// Errors that are not already *Error take fallback as their code.
func AsError(err error, fallback int32) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Message: err.Error(), Code: fallback}
}
