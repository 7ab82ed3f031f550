package typeid

import (
	"go.jetify.com/typeid/v2"
)

const (
	PrefixElement = "el"
	PrefixImage   = "img"
)

// New returns a prefixed, time-ordered id. The suffix is a UUIDv7 (millisecond
// timestamp plus random bits), so ids generated concurrently by independent
// clients do not collide in practice.
func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewElementID() string { return New(PrefixElement) }

func NewImageID() string { return New(PrefixImage) }
