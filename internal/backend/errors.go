// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes backend errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// KindConnectivity: the backend could not be reached or failed its
	// liveness probe. Interaction is disabled until the next good probe.
	KindConnectivity

	// KindTransport: a request or stream failed after it was accepted.
	KindTransport

	// KindRejection: the backend answered with a non-2xx status.
	KindRejection

	// KindDecode: the backend answered 2xx with a body we could not read.
	KindDecode
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindTransport:
		return "transport"
	case KindRejection:
		return "rejection"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method.
type Error struct {
	Kind    ErrorKind
	Op      string // endpoint, e.g. "POST /api/clear"
	Status  int    // HTTP status for rejections
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrRejected) holds
// for every rejection regardless of endpoint or status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status) && t.Op == ""
}

// Sentinel errors for errors.Is checks.
var (
	ErrUnreachable = &Error{Kind: KindConnectivity, Message: "backend unreachable"}
	ErrTransport   = &Error{Kind: KindTransport, Message: "transport failure"}
	ErrRejected    = &Error{Kind: KindRejection, Message: "request rejected"}
	ErrBadResponse = &Error{Kind: KindDecode, Message: "invalid response"}
)

// IsConnectivity reports whether err is a connectivity failure.
func IsConnectivity(err error) bool { return errors.Is(err, ErrUnreachable) }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }

// IsRejection reports whether err is a non-2xx answer.
func IsRejection(err error) bool { return errors.Is(err, ErrRejected) }

// IsDecode reports whether err is an unreadable 2xx answer.
func IsDecode(err error) bool { return errors.Is(err, ErrBadResponse) }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
