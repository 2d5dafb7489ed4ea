package source

import "errors"

var (
	// ErrUnsupportedScheme is returned when no opener is registered for a URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")

	// ErrInvalidURL is returned when the source URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid source url")

	// ErrOpenerRequired is returned when a nil opener is registered.
	ErrOpenerRequired = errors.New("opener required")

	// ErrS3ClientRequired is returned when an S3 opener is built without a client.
	ErrS3ClientRequired = errors.New("s3 client required")
)
