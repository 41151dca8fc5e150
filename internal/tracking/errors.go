package tracking

import "errors"

var (
	// ErrAcquisitionInvalid means acquisition produced no satellite for the channel
	ErrAcquisitionInvalid = errors.New("acquisition failed for channel")

	// ErrInputExhausted means the signal source cannot supply a full block
	ErrInputExhausted = errors.New("signal source exhausted")

	// ErrDegenerateDiscriminator means a discriminator input was zero or not finite
	ErrDegenerateDiscriminator = errors.New("degenerate discriminator")

	// ErrLostLock means too many consecutive epochs, or every epoch, had
	// degenerate discriminators
	ErrLostLock = errors.New("channel lost lock")
)
