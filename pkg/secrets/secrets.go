// pkg/secrets/secrets.go
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Box seals and opens credential blobs with AES-GCM. The blob layout is
// versioned: 0x01 | nonce | ciphertext. An empty key disables encryption
// and stores plain JSON (dev only).
type Box struct {
	key []byte
}

func NewBox(key string) *Box {
	if key == "" {
		return &Box{}
	}
	return &Box{key: []byte(key)}
}

// SealJSON encrypts the JSON encoding of v; with no key it JSON-encodes only.
func (b *Box) SealJSON(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(b.key) == 0 {
		return plain, nil
	}
	gcm, err := b.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plain, nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = 0x01
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

// OpenJSON reverses SealJSON into out. Corrupt input, an unsupported version
// byte, or a mismatched key all fail distinguishably.
func (b *Box) OpenJSON(blob []byte, out any) error {
	if len(b.key) == 0 {
		if err := json.Unmarshal(blob, out); err != nil {
			return fmt.Errorf("secrets: plain blob: %w", err)
		}
		return nil
	}
	if len(blob) < 2 {
		return fmt.Errorf("secrets: invalid blob")
	}
	if blob[0] != 0x01 {
		return fmt.Errorf("secrets: unsupported version %#x", blob[0])
	}
	gcm, err := b.gcm()
	if err != nil {
		return err
	}
	if len(blob) < 1+gcm.NonceSize() {
		return fmt.Errorf("secrets: short nonce")
	}
	nonce := blob[1 : 1+gcm.NonceSize()]
	ct := blob[1+gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return fmt.Errorf("secrets: open: %w", err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("secrets: decode: %w", err)
	}
	return nil
}

func (b *Box) gcm() (cipher.AEAD, error) {
	h := sha256.Sum256(b.key)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
