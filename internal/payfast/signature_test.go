package payfast

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() Fields {
	return Fields{
		{Key: "merchant_id", Value: "10000100"},
		{Key: "merchant_key", Value: "46f0cd694581a"},
		{Key: "m_payment_id", Value: "order-123"},
		{Key: "amount", Value: "199.90"},
		{Key: "item_name", Value: "CAPS Resources - Order order-123"},
	}
}

func TestCanonicalize(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name   string
		fields Fields
		want   string
	}{
		{
			name: "preserves insertion order, not sorted order",
			fields: Fields{
				{Key: "zebra", Value: "1"},
				{Key: "alpha", Value: "2"},
			},
			want: "zebra=1&alpha=2",
		},
		{
			name: "skips empty values",
			fields: Fields{
				{Key: "a", Value: "1"},
				{Key: "b", Value: ""},
				{Key: "c", Value: "3"},
			},
			want: "a=1&c=3",
		},
		{
			name: "encodes spaces as plus and trims",
			fields: Fields{
				{Key: "item_name", Value: " Grade 4 Maths Workbook "},
			},
			want: "item_name=Grade+4+Maths+Workbook",
		},
		{
			name: "percent-encodes reserved characters",
			fields: Fields{
				{Key: "return_url", Value: "https://shop.example/payment/success"},
			},
			want: "return_url=https%3A%2F%2Fshop.example%2Fpayment%2Fsuccess",
		},
		{
			name:   "empty payload",
			fields: Fields{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codec.Canonicalize(tt.fields))
		})
	}
}

func TestSignMatchesDigestOfCanonicalString(t *testing.T) {
	codec := NewCodec()
	fields := Fields{
		{Key: "m_payment_id", Value: "order-123"},
		{Key: "amount", Value: "199.90"},
	}

	sum := md5.Sum([]byte("m_payment_id=order-123&amount=199.90"))
	assert.Equal(t, hex.EncodeToString(sum[:]), codec.Sign(fields, ""))

	sumWithSecret := md5.Sum([]byte("m_payment_id=order-123&amount=199.90&passphrase=top+secret"))
	assert.Equal(t, hex.EncodeToString(sumWithSecret[:]), codec.Sign(fields, "top secret"))
}

func TestVerifyRoundTrip(t *testing.T) {
	codec := NewCodec()
	payload := samplePayload()
	digest := codec.Sign(payload, "secret")

	assert.True(t, codec.Verify(payload, digest, "secret"))
	assert.True(t, codec.Verify(payload, digest, "secret"), "verification must be repeatable")
}

func TestVerifyRejectsTampering(t *testing.T) {
	codec := NewCodec()
	payload := samplePayload()
	digest := codec.Sign(payload, "secret")

	t.Run("mutated field value", func(t *testing.T) {
		tampered := make(Fields, len(payload))
		copy(tampered, payload)
		tampered[3].Value = "0.01"
		assert.False(t, codec.Verify(tampered, digest, "secret"))
	})

	t.Run("mutated digest", func(t *testing.T) {
		assert.False(t, codec.Verify(payload, digest[:len(digest)-1]+"0", "secret"))
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		assert.False(t, codec.Verify(payload, digest, "other"))
	})

	t.Run("empty digest", func(t *testing.T) {
		assert.False(t, codec.Verify(payload, "", "secret"))
	})
}

func TestVerifyExcludesSignatureField(t *testing.T) {
	codec := NewCodec()
	payload := samplePayload()
	digest := codec.Sign(payload, "secret")

	// A received notification carries its own digest as a field; it must not
	// feed back into the recomputation.
	received := append(append(Fields{}, payload...), Field{Key: SignatureField, Value: digest})
	assert.True(t, codec.Verify(received, digest, "secret"))
}

func TestVerifyAcceptsUppercaseDigest(t *testing.T) {
	codec := NewCodec()
	payload := samplePayload()
	digest := codec.Sign(payload, "secret")

	upper := ""
	for _, r := range digest {
		if r >= 'a' && r <= 'f' {
			upper += string(r - 32)
		} else {
			upper += string(r)
		}
	}
	assert.True(t, codec.Verify(payload, upper, "secret"))
}

func TestCodecWithAlternativeHash(t *testing.T) {
	codec := NewCodecWithHash(func() hash.Hash { return sha256.New() })
	payload := samplePayload()
	digest := codec.Sign(payload, "secret")

	require.Len(t, digest, 64)
	assert.True(t, codec.Verify(payload, digest, "secret"))
	assert.False(t, NewCodec().Verify(payload, digest, "secret"))
}

func TestParseForm(t *testing.T) {
	t.Run("preserves wire order", func(t *testing.T) {
		fields, err := ParseForm("z_last=1&a_first=2&m_payment_id=order-9")
		require.NoError(t, err)
		require.Len(t, fields, 3)
		assert.Equal(t, "z_last", fields[0].Key)
		assert.Equal(t, "a_first", fields[1].Key)
		assert.Equal(t, "m_payment_id", fields[2].Key)
	})

	t.Run("decodes plus and percent escapes", func(t *testing.T) {
		fields, err := ParseForm("item_name=Grade+4+Maths&email_address=user%40example.com")
		require.NoError(t, err)
		v, ok := fields.Get("item_name")
		require.True(t, ok)
		assert.Equal(t, "Grade 4 Maths", v)
		v, ok = fields.Get("email_address")
		require.True(t, ok)
		assert.Equal(t, "user@example.com", v)
	})

	t.Run("rejects malformed escapes", func(t *testing.T) {
		_, err := ParseForm("a=%zz")
		assert.Error(t, err)
	})

	t.Run("round trips through verify", func(t *testing.T) {
		codec := NewCodec()
		payload := samplePayload()
		digest := codec.Sign(payload, "secret")

		body := codec.Canonicalize(payload) + "&signature=" + digest
		fields, err := ParseForm(body)
		require.NoError(t, err)

		got, ok := fields.Get(SignatureField)
		require.True(t, ok)
		assert.True(t, codec.Verify(fields, got, "secret"))
	})
}
