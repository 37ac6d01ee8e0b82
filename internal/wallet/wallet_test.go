package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndReimport(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)

	imported, err := NewWallet(w.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey, imported.PublicKey)
	assert.True(t, imported.Matches(w.String()))
}

func TestFromBytesCopiesInput(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)

	raw := w.Bytes()
	imported, err := FromBytes(raw)
	require.NoError(t, err)

	raw[0] ^= 0xFF
	assert.Equal(t, w.PrivateKey, imported.PrivateKey)
}

func TestFromBytesRejectsBadKeys(t *testing.T) {
	_, err := FromBytes(make([]byte, 32))
	assert.Error(t, err)

	w, err := Generate()
	require.NoError(t, err)
	raw := w.Bytes()
	raw[63] ^= 0x01
	_, err = FromBytes(raw)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	_, err = NewWallet("not-base58-0OIl")
	assert.Error(t, err)
}

func TestSignTransaction(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1, w.PublicKey, solana.NewWallet().PublicKey()).Build(),
		},
		solana.Hash{},
		solana.TransactionPayer(w.PublicKey),
	)
	require.NoError(t, err)

	require.NoError(t, w.SignTransaction(tx))
	require.Len(t, tx.Signatures, 1)
	assert.False(t, tx.Signatures[0].IsZero())
	assert.NoError(t, tx.VerifySignatures())
}

func TestWipe(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	w.Wipe()
	for _, b := range w.PrivateKey {
		assert.Zero(t, b)
	}
}
