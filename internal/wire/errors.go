package wire

import "errors"

var (
	// ErrNoData is returned by Incoming.Query when the requested option is
	// absent. It is not a codec failure.
	ErrNoData = errors.New("wire: option not present")

	// ErrOptionOverflow is returned by Outgoing.Append when an option no
	// longer fits in the main option area or either overloaded header
	// region.
	ErrOptionOverflow = errors.New("wire: no room left for option, including overloaded regions")

	// ErrTruncated is returned by NewIncoming when data is shorter than the
	// fixed header plus magic cookie.
	ErrTruncated = errors.New("wire: datagram shorter than fixed header")

	// ErrBadMagicCookie is returned by NewIncoming when the magic cookie
	// (RFC 2131 §3) does not match.
	ErrBadMagicCookie = errors.New("wire: bad magic cookie")
)
