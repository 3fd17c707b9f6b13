package api

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// KindOf classifies err into the caller-facing taxonomy. Typed errors keep
// their own kind; deadline errors become Timeout, refused connections become
// Unavailable and anything else unrecognized is treated as a protocol error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if IsTimeout(err) {
		return ErrorKindTimeout
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	if IsConnectionRefused(err) {
		return ErrorKindUnavailable
	}
	return ErrorKindProtocolError
}

// IsTimeout reports whether err is or wraps a deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionRefused reports whether err is a refused or unreachable dial.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// SafeMessage returns a caller-facing message for err. Connection details
// (addresses, dial errors) are replaced by generic text.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		nf *NotFoundError
		ua *UnavailableError
		be *BackendError
		te *TimeoutError
	)
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &ua):
		return ua.Error()
	case IsTimeout(err):
		if errors.As(err, &te) {
			return te.Error()
		}
		return "backend call timed out"
	case errors.As(err, &be):
		return be.Message
	case IsConnectionRefused(err):
		return "backend is not reachable"
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "protocol error: " + pe.Message
	}
	return "protocol error"
}

// ProbeFailureKind maps a probe error to the failure kind stored in the
// health record.
func ProbeFailureKind(err error) FailureKind {
	switch {
	case IsTimeout(err):
		return FailureTimeout
	case IsConnectionRefused(err):
		return FailureConnectionRefused
	}
	var be *BackendError
	if errors.As(err, &be) {
		return FailureApplicationError
	}
	return FailureProtocolError
}
