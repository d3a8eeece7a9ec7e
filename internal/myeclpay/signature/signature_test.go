package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/stretchr/testify/require"
)

func testContent() domain.QRCodeContent {
	return domain.QRCodeContent{
		ID:       uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Total:    500,
		IssuedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Key:      uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Store:    true,
	}
}

func TestSignableBytesFieldOrder(t *testing.T) {
	msg, err := SignableBytes(testContent())
	require.NoError(t, err)
	require.Equal(t,
		`{"id":"11111111-1111-1111-1111-111111111111","tot":500,"iat":"2026-03-01T12:00:00Z","key":"22222222-2222-2222-2222-222222222222","store":true}`,
		string(msg),
	)
}

func TestSignableBytesNormalizesZone(t *testing.T) {
	content := testContent()
	paris := time.FixedZone("CET", 3600)
	content.IssuedAt = content.IssuedAt.In(paris)

	a, err := SignableBytes(content)
	require.NoError(t, err)
	b, err := SignableBytes(testContent())
	require.NoError(t, err)
	require.Equal(t, string(b), string(a))
}

func TestVerifyKeepsReceivedIssuedAt(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	// The device signs its own rendering of iat, offset and all.
	signed := `{"id":"11111111-1111-1111-1111-111111111111","tot":500,"iat":"2026-03-01T13:00:00.123456+01:00","key":"22222222-2222-2222-2222-222222222222","store":true}`
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(signed)))

	body := `{"id":"11111111-1111-1111-1111-111111111111","tot":500,"iat":"2026-03-01T13:00:00.123456+01:00","key":"22222222-2222-2222-2222-222222222222","store":true,"signature":"` + sig + `"}`
	var info domain.ScanInfo
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.Equal(t, sig, info.Signature)
	require.Equal(t, "2026-03-01T13:00:00.123456+01:00", info.RawIssuedAt)
	require.True(t, info.IssuedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)))

	msg, err := SignableBytes(info.QRCodeContent)
	require.NoError(t, err)
	require.Equal(t, signed, string(msg))
	require.NoError(t, Verify(pub, info.Signature, info.QRCodeContent))

	// Re-rendering iat in UTC would break the device signature.
	normalized := info.QRCodeContent
	normalized.RawIssuedAt = ""
	require.ErrorIs(t, Verify(pub, info.Signature, normalized), ErrMismatch)
}

func TestVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()

	sig, err := Sign(priv, content)
	require.NoError(t, err)
	require.NoError(t, Verify(pub, sig, content))

	t.Run("tampered total", func(t *testing.T) {
		tampered := content
		tampered.Total = 501
		require.ErrorIs(t, Verify(pub, sig, tampered), ErrMismatch)
	})

	t.Run("store flag flipped", func(t *testing.T) {
		tampered := content
		tampered.Store = false
		require.ErrorIs(t, Verify(pub, sig, tampered), ErrMismatch)
	})

	t.Run("other key", func(t *testing.T) {
		other, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		require.ErrorIs(t, Verify(other, sig, content), ErrMismatch)
	})

	t.Run("not base64", func(t *testing.T) {
		require.ErrorIs(t, Verify(pub, "%%%", content), ErrMalformed)
	})

	t.Run("short signature", func(t *testing.T) {
		require.ErrorIs(t, Verify(pub, base64.StdEncoding.EncodeToString([]byte("short")), content), ErrMalformed)
	})

	t.Run("bad public key", func(t *testing.T) {
		require.ErrorIs(t, Verify([]byte("short"), sig, content), ErrInvalidPublicKey)
	})
}

func TestParsePublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	raw, err := ParsePublicKey(base64.StdEncoding.EncodeToString(pub))
	require.NoError(t, err)
	require.Equal(t, []byte(pub), raw)

	_, err = ParsePublicKey("AAAA")
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}
