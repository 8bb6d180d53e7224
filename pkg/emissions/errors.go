package emissions

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

var (
	// ErrInvalidInput indicates a NaN or infinite quantity or percentage.
	ErrInvalidInput = constError("invalid emission input")

	// ErrCalculationOverflow indicates an intermediate result that is not
	// a finite number.
	ErrCalculationOverflow = constError("emission calculation overflow")
)
