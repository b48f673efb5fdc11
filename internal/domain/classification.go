package domain

// Classification is the kind of an Identity, derived from its handle.
type Classification int

const (
	// Anonymous is the classification of an empty handle; it is never temporary.
	Anonymous Classification = iota
	Placeholder
	Unlinked
	Standard
)

func (c Classification) String() string {
	switch c {
	case Placeholder:
		return "placeholder"
	case Unlinked:
		return "unlinked"
	case Standard:
		return "standard"
	default:
		return "anonymous"
	}
}
