package cache

type constError string

func (e constError) Error() string { return string(e) }

const (
	// ErrInvalidCapacity is the panic value (wrapped) of New when Capacity < 1.
	ErrInvalidCapacity constError = "cache: capacity must be > 0"

	// ErrIndexOutOfRange is the panic value (wrapped) of LookupIndex when
	// idx is outside [0, Cap()).
	ErrIndexOutOfRange constError = "cache: index out of range"
)
