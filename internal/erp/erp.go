// Package erp implements the "Encrypt with Random Padding" ChaCha20-Poly1305
// framing: a salted per-session key, monotonic per-direction nonces, and
// per-frame random padding sized from a lookup table keyed by chunk length.
package erp

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

const (
	// MaxChunkLen is the maximum chunk plaintext length; larger inputs are split.
	MaxChunkLen = 0x3FFF
	// SaltLen is the per-session salt length in bytes.
	SaltLen = 32
	// KeyLen is the derived ChaCha20-Poly1305 key length in bytes.
	KeyLen = 32
	// NonceLen is the ChaCha20-Poly1305 nonce length in bytes.
	NonceLen = 12
	// TagLen is the ChaCha20-Poly1305 authentication tag length.
	TagLen = 16
	// hkdfInfo is the fixed HKDF info string for ERP key derivation.
	hkdfInfo = "bp-subkey"
)

// reader is the subset of breader.Reader that Decode needs.
type reader interface {
	ReadExact(n int) ([]byte, error)
}

// Codec holds one ERP session's key schedule and nonce state. A single
// Codec is shared by both directions of a connection: client_encode/
// server_encode drive the encrypt nonce, client_decode/server_decode drive
// the decrypt nonce, both under the one key derived from the session salt.
type Codec struct {
	rawKey []byte

	salt       []byte
	derivedKey []byte

	encryptNonce uint64
	decryptNonce uint64

	headerSent bool
}

// NewClient builds a Codec that generates its own salt and derives the key
// immediately, as required of the client role.
func NewClient(key []byte) (*Codec, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, cerrors.NewAEADError("generate_salt", err)
	}
	derived, err := deriveKey(key, salt)
	if err != nil {
		return nil, err
	}
	return &Codec{rawKey: key, salt: salt, derivedKey: derived}, nil
}

// NewServer builds a Codec that has no salt yet; ReadSalt must be called
// before the first Encode/Decode.
func NewServer(key []byte) *Codec {
	return &Codec{rawKey: key}
}

func deriveKey(ikm, salt []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, ikm, salt, []byte(hkdfInfo))
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, cerrors.NewAEADError("derive_key", err)
	}
	return key, nil
}

// ReadSalt consumes the 32-byte salt header from r and derives the session
// key from it. Used by the server on its first decode.
func (c *Codec) ReadSalt(r reader) error {
	salt, err := r.ReadExact(SaltLen)
	if err != nil {
		return err
	}
	derived, err := deriveKey(c.rawKey, salt)
	if err != nil {
		return err
	}
	c.salt = salt
	c.derivedKey = derived
	return nil
}

// HasKey reports whether the session key has been established (client:
// always after construction; server: only after ReadSalt).
func (c *Codec) HasKey() bool {
	return c.derivedKey != nil
}

func nonceBytes(counter uint64) []byte {
	b := make([]byte, NonceLen)
	binary.LittleEndian.PutUint64(b[:8], counter)
	return b
}

func (c *Codec) aead() (cipher.AEAD, error) {
	a, err := chacha20poly1305.New(c.derivedKey)
	if err != nil {
		return nil, cerrors.NewAEADError("new_cipher", err)
	}
	return a, nil
}

func (c *Codec) seal(plaintext []byte) ([]byte, error) {
	a, err := c.aead()
	if err != nil {
		return nil, err
	}
	nonce := nonceBytes(c.encryptNonce)
	out := a.Seal(nil, nonce, plaintext, nil)
	c.encryptNonce++
	return out, nil
}

func (c *Codec) open(ciphertext []byte) ([]byte, error) {
	a, err := c.aead()
	if err != nil {
		return nil, err
	}
	nonce := nonceBytes(c.decryptNonce)
	out, err := a.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, cerrors.NewAEADError("open", err)
	}
	c.decryptNonce++
	return out, nil
}

// paddingLen picks the deterministic-random padding length for a chunk of
// the given plaintext length.
func paddingLen(chunkLen int, r byte) int {
	switch {
	case chunkLen > 1440:
		return 0
	case chunkLen > 1300:
		return int(r) % 31
	case chunkLen > 900:
		return int(r) % 127
	case chunkLen > 400:
		return int(r) % 521
	default:
		return int(r) % 1021
	}
}

// Encode splits plaintext into chunks of at most MaxChunkLen bytes and
// frames each one: encrypted pad length, random padding, encrypted chunk
// length, encrypted chunk.
func (c *Codec) Encode(plaintext []byte) ([]byte, error) {
	var out []byte
	for {
		n := len(plaintext)
		if n > MaxChunkLen {
			n = MaxChunkLen
		}
		chunk := plaintext[:n]
		plaintext = plaintext[n:]

		frame, err := c.encodeFrame(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)

		if len(plaintext) == 0 {
			break
		}
	}
	return out, nil
}

func (c *Codec) encodeFrame(chunk []byte) ([]byte, error) {
	var rb [1]byte
	if _, err := rand.Read(rb[:]); err != nil {
		return nil, cerrors.NewAEADError("random_pad_selector", err)
	}
	padLen := paddingLen(len(chunk), rb[0])
	padding := make([]byte, padLen)
	if padLen > 0 {
		if _, err := rand.Read(padding); err != nil {
			return nil, cerrors.NewAEADError("random_padding", err)
		}
	}

	encPadLen, err := c.seal([]byte{byte(padLen)})
	if err != nil {
		return nil, err
	}

	chunkLenBuf := []byte{byte(len(chunk) >> 8), byte(len(chunk))}
	encChunkLen, err := c.seal(chunkLenBuf)
	if err != nil {
		return nil, err
	}

	encChunk, err := c.seal(chunk)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(encPadLen)+len(padding)+len(encChunkLen)+len(encChunk))
	frame = append(frame, encPadLen...)
	frame = append(frame, padding...)
	frame = append(frame, encChunkLen...)
	frame = append(frame, encChunk...)
	return frame, nil
}

// EncodeWithHeader behaves like Encode but, on the first call for a client
// Codec, prepends the 32-byte session salt as the stream header.
func (c *Codec) EncodeWithHeader(plaintext []byte) ([]byte, error) {
	data, err := c.Encode(plaintext)
	if err != nil {
		return nil, err
	}
	if c.headerSent {
		return data, nil
	}
	c.headerSent = true
	out := make([]byte, 0, len(c.salt)+len(data))
	out = append(out, c.salt...)
	out = append(out, data...)
	return out, nil
}

// DecodeFrame reads and decrypts exactly one frame from r.
func (c *Codec) DecodeFrame(r reader) ([]byte, error) {
	encPadLen, err := r.ReadExact(1 + TagLen)
	if err != nil {
		return nil, err
	}
	padLenBuf, err := c.open(encPadLen)
	if err != nil {
		return nil, err
	}
	padLen := int(padLenBuf[0])

	if _, err := r.ReadExact(padLen); err != nil {
		return nil, err
	}

	encChunkLen, err := r.ReadExact(2 + TagLen)
	if err != nil {
		return nil, err
	}
	chunkLenBuf, err := c.open(encChunkLen)
	if err != nil {
		return nil, err
	}
	chunkLen := int(chunkLenBuf[0])<<8 | int(chunkLenBuf[1])
	if chunkLen > MaxChunkLen {
		return nil, cerrors.NewFrameTooLargeError(chunkLen)
	}

	encChunk, err := r.ReadExact(chunkLen + TagLen)
	if err != nil {
		return nil, err
	}
	return c.open(encChunk)
}
