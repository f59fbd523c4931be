package serialization

var (
	ErrInvalidMessage    = &SerializationError{Msg: "invalid message"}
	ErrUnknownSerializer = &SerializationError{Msg: "unknown serializer"}
)

type SerializationError struct {
	Msg string
}

func (e *SerializationError) Error() string {
	return e.Msg
}
