package security

// testSigningKey is a fixed HS256 secret for unit tests only. Do not use in production.
const testSigningKey = "test-signing-key-0123456789abcdef0123456789"

// NewTestTokenCodec returns a TokenCodec using the embedded test secret and issuer "test-issuer".
// For unit tests only.
func NewTestTokenCodec(opts ...CodecOption) *TokenCodec {
	c, err := NewTokenCodec([]byte(testSigningKey), "test-issuer", opts...)
	if err != nil {
		panic(err)
	}
	return c
}
