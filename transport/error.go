package transport

var (
	ErrNoAddress        = &Error{"no address provided"}
	ErrClosed           = &Error{"transport closed"}
	ErrUnknownScheme    = &Error{"unknown transport scheme"}
	ErrUnknownIdentity  = &Error{"unknown peer identity"}
	ErrOutOfOrder       = &Error{"request/reply out of order"}
	ErrInvalidFrame     = &Error{"invalid frame"}
	ErrFrameTooLarge    = &Error{"frame too large"}
	ErrAddressInUse     = &Error{"address already in use"}
	ErrEndpointNotFound = &Error{"endpoint not found"}
)

// Error represents an error in the transport package.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
