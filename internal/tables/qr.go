// Package tables encodes the table codes printed on QR stickers. A code is
// the table reference sealed with AES-GCM, so a device can only register at a
// table whose sticker it scanned.
package tables

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidCode = errors.New("invalid table code")

// Ref identifies the table a code was printed for.
type Ref struct {
	TableID        string `json:"t"`
	OrganizationID string `json:"o"`
	BranchID       string `json:"b"`
}

type Codec struct {
	aead cipher.AEAD
}

func NewCodec(secret string) (*Codec, error) {
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encode seals ref into a URL-safe code.
func (c *Codec) Encode(ref Ref) (string, error) {
	data, err := json.Marshal(ref)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a code produced by Encode with the same secret.
func (c *Codec) Decode(code string) (Ref, error) {
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return Ref{}, ErrInvalidCode
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	data, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Ref{}, ErrInvalidCode
	}
	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil || ref.TableID == "" {
		return Ref{}, ErrInvalidCode
	}
	return ref, nil
}

// JoinURL is the address encoded in the sticker: base plus ?code=.
func (c *Codec) JoinURL(base string, ref Ref) (string, error) {
	code, err := c.Encode(ref)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid join url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// QRCode renders the join URL of ref as a PNG.
func (c *Codec) QRCode(base string, ref Ref, size int) ([]byte, error) {
	link, err := c.JoinURL(base, ref)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}
