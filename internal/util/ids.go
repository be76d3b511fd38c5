package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const shortIDLength = 10

// NewID returns a url-safe public identifier.
func NewID() (string, error) {
	return gonanoid.New()
}

// NewShortID returns a shorter identifier used for node and edge ids,
// where the id space is scoped to a single composition.
func NewShortID() (string, error) {
	return gonanoid.New(shortIDLength)
}

// MustShortID is NewShortID for call sites that cannot propagate an error;
// the underlying generator only fails when the OS entropy source does.
func MustShortID() string {
	return gonanoid.Must(shortIDLength)
}
