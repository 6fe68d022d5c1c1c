package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"strings"
)

// SignatureField is the reserved name of the digest field on the wire. It is
// never part of the canonicalized input when verifying.
const SignatureField = "signature"

// Field is one named value of a payment payload. PayFast signatures are
// computed over the fields in the order they were produced, so payloads are
// carried as an ordered slice and never as a map.
type Field struct {
	Key   string
	Value string
}

type Fields []Field

func (f Fields) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// Without returns a copy of the fields with every occurrence of key removed.
func (f Fields) Without(key string) Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		if field.Key != key {
			out = append(out, field)
		}
	}
	return out
}

// ParseForm decodes a form-encoded request body into fields, preserving the
// order in which the gateway sent them. url.ParseQuery cannot be used here
// because it collects values into a map and loses that order.
func ParseForm(body string) (Fields, error) {
	var fields Fields
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, rawValue, _ := strings.Cut(pair, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("malformed form key %q: %w", key, err)
		}
		decodedValue, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("malformed form value for %q: %w", decodedKey, err)
		}
		fields = append(fields, Field{Key: decodedKey, Value: decodedValue})
	}
	return fields, nil
}

// Codec canonicalizes payment payloads and derives the keyed digest PayFast
// expects. The digest algorithm is a wire-compatibility contract with the
// gateway, not a security boundary; it defaults to MD5 but is injectable.
type Codec struct {
	newHash func() hash.Hash
}

func NewCodec() *Codec {
	return &Codec{newHash: md5.New}
}

func NewCodecWithHash(newHash func() hash.Hash) *Codec {
	return &Codec{newHash: newHash}
}

// Canonicalize joins the fields as key=value pairs with "&", in the order
// given, skipping empty values. Values are trimmed and form-encoded with "+"
// for spaces, matching what PayFast computes on its side byte for byte.
func (c *Codec) Canonicalize(fields Fields) string {
	var b strings.Builder
	for _, field := range fields {
		if field.Value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(field.Key)
		b.WriteByte('=')
		b.WriteString(encodeValue(field.Value))
	}
	return b.String()
}

// Sign returns the hex digest of the canonical string, with the passphrase
// appended as a trailing field when one is configured.
func (c *Codec) Sign(fields Fields, passphrase string) string {
	canonical := c.Canonicalize(fields)
	if passphrase != "" {
		canonical += "&passphrase=" + encodeValue(passphrase)
	}
	h := c.newHash()
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest over the fields, excluding the signature field
// itself, and compares in constant time.
func (c *Codec) Verify(fields Fields, suppliedDigest, passphrase string) bool {
	if suppliedDigest == "" {
		return false
	}
	expected := c.Sign(fields.Without(SignatureField), passphrase)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(suppliedDigest))) == 1
}

func encodeValue(v string) string {
	return url.QueryEscape(strings.TrimSpace(v))
}
