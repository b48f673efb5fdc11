package service

// Hasher hashes identity secrets. Unusable returns a blob no secret ever
// verifies against.
type Hasher interface {
	Hash(secret string) ([]byte, error)
	Verify(blob []byte, secret string) bool
	Unusable() []byte
}
