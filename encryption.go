package axisdb

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionNonceSize = 12
	encryptionSaltSize  = 16
	encryptionKeySize   = 32 // AES-256
	pbkdf2Iterations    = 100000
)

// encryptionCodec wraps an inner codec with AES-256-GCM. Each blob
// carries the key-derivation salt and nonce it was sealed with, so blobs
// written by different engine instances stay readable as long as the
// passphrase matches. Derived keys are cached per salt because PBKDF2 is
// deliberately slow.
type encryptionCodec struct {
	inner      Codec
	passphrase []byte

	salt []byte      // salt for newly written blobs
	gcm  cipher.AEAD // AEAD for the write salt

	mu   sync.Mutex
	keys map[string]cipher.AEAD // read-side AEADs by salt
}

var _ Codec = (*encryptionCodec)(nil)

func newEncryptionCodec(inner Codec, passphrase string) (*encryptionCodec, error) {
	c := &encryptionCodec{
		inner:      inner,
		passphrase: []byte(passphrase),
		keys:       make(map[string]cipher.AEAD),
	}
	c.salt = make([]byte, encryptionSaltSize)
	if _, err := rand.Read(c.salt); err != nil {
		return nil, err
	}
	gcm, err := c.aeadFor(c.salt)
	if err != nil {
		return nil, err
	}
	c.gcm = gcm
	return c, nil
}

func (c *encryptionCodec) aeadFor(salt []byte) (cipher.AEAD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gcm, ok := c.keys[string(salt)]; ok {
		return gcm, nil
	}
	key := pbkdf2.Key(c.passphrase, salt, pbkdf2Iterations, encryptionKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	c.keys[string(salt)] = gcm
	return gcm, nil
}

func (c *encryptionCodec) Encode(data []byte) ([]byte, error) {
	plain, err := c.inner.Encode(data)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, encryptionSaltSize+encryptionNonceSize+len(plain)+c.gcm.Overhead())
	out = append(out, c.salt...)
	out = append(out, nonce...)
	return c.gcm.Seal(out, nonce, plain, nil), nil
}

func (c *encryptionCodec) Decode(data []byte) ([]byte, error) {
	if len(data) < encryptionSaltSize+encryptionNonceSize {
		return nil, fmt.Errorf("%w: encrypted blob too short", ErrStoreContract)
	}
	salt := data[:encryptionSaltSize]
	nonce := data[encryptionSaltSize : encryptionSaltSize+encryptionNonceSize]
	gcm, err := c.aeadFor(salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, data[encryptionSaltSize+encryptionNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt blob: %w", err)
	}
	return c.inner.Decode(plain)
}
