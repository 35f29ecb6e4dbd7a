package hub

import "errors"

var (
	// ErrNotConnected indicates an operation on a session with no live link.
	ErrNotConnected = errors.New("hub: not connected")

	// ErrHandshakeTimeout indicates the hub did not answer the InfoRequest
	// within the handshake deadline.
	ErrHandshakeTimeout = errors.New("hub: handshake timeout")
	// ErrHandshakeRejected indicates the hub answered the handshake with an
	// error-shaped response.
	ErrHandshakeRejected = errors.New("hub: handshake rejected")

	// ErrUploadRejected indicates the hub refused to open the transfer
	// (e.g. slot busy); no program bytes were consumed.
	ErrUploadRejected = errors.New("hub: upload rejected")
	// ErrUploadFailed indicates the transfer aborted mid-flight (chunk NACK
	// or timeout). The protocol has no resume; retry restarts the upload.
	ErrUploadFailed = errors.New("hub: upload failed")

	// ErrFlowTimeout indicates no ProgramFlowResponse within the deadline.
	ErrFlowTimeout = errors.New("hub: program flow timeout")
	// ErrFlowRejected indicates the hub refused the program flow request.
	ErrFlowRejected = errors.New("hub: program flow rejected")

	// ErrUnknownAction indicates an action absent from the preload catalog.
	ErrUnknownAction = errors.New("hub: unknown action")
	// ErrActionUnavailable indicates an action whose preload upload failed;
	// the rest of the catalog stays usable.
	ErrActionUnavailable = errors.New("hub: action unavailable")
)

// errRequestTimeout is the session-internal deadline error; callers map it
// to the operation-specific timeout error before it escapes the package.
var errRequestTimeout = errors.New("hub: request timeout")
