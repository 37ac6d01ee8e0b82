package vault

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// Low cost keeps the suite fast; the production default is covered separately.
func testVault() *Vault { return New(1_000) }

func TestRoundTrip(t *testing.T) {
	v := testVault()
	key := bytes.Repeat([]byte{0xAB}, 64)

	ct, salt, err := v.Encrypt(key, "1234")
	require.NoError(t, err)
	assert.Len(t, salt, SaltSize)
	assert.Len(t, ct, NonceSize+len(key)+16)

	got, err := v.Decrypt(ct, salt, "1234")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestWrongPassphraseIsAuthenticationFailure(t *testing.T) {
	v := testVault()
	ct, salt, err := v.Encrypt([]byte("secret-key-bytes"), "1234")
	require.NoError(t, err)

	_, err = v.Decrypt(ct, salt, "4321")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, types.ErrCredential)
}

func TestCorruptionYieldsSameError(t *testing.T) {
	v := testVault()
	ct, salt, err := v.Encrypt([]byte("secret-key-bytes"), "1234")
	require.NoError(t, err)

	flipped := bytes.Clone(ct)
	flipped[len(flipped)-1] ^= 0x01

	otherSalt := bytes.Clone(salt)
	otherSalt[0] ^= 0xFF

	cases := map[string]func() ([]byte, error){
		"tampered tag":  func() ([]byte, error) { return v.Decrypt(flipped, salt, "1234") },
		"other salt":    func() ([]byte, error) { return v.Decrypt(ct, otherSalt, "1234") },
		"short blob":    func() ([]byte, error) { return v.Decrypt(ct[:10], salt, "1234") },
		"short salt":    func() ([]byte, error) { return v.Decrypt(ct, salt[:4], "1234") },
		"empty pin":     func() ([]byte, error) { return v.Decrypt(ct, salt, "") },
		"nil inputs":    func() ([]byte, error) { return v.Decrypt(nil, nil, "1234") },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := fn()
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrAuthentication))
			assert.Equal(t, ErrAuthentication.Error(), err.Error())
		})
	}
}

func TestSaltIsFreshPerEncryption(t *testing.T) {
	v := testVault()
	key := []byte("same key, same pin")

	ct1, salt1, err := v.Encrypt(key, "0000")
	require.NoError(t, err)
	ct2, salt2, err := v.Encrypt(key, "0000")
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, ct1, ct2)
}

func TestEncryptRejectsEmptyInput(t *testing.T) {
	v := testVault()
	_, _, err := v.Encrypt([]byte("k"), "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, _, err = v.Encrypt(nil, "1234")
	assert.Error(t, err)
}

func TestDefaultIterations(t *testing.T) {
	var v *Vault
	assert.Equal(t, Iterations, v.iter())
	assert.Equal(t, Iterations, New(0).iter())
	assert.Equal(t, 10, New(10).iter())
}
