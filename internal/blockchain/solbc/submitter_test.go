package solbc

import (
	"context"
	"errors"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/sentinel-bot/internal/blockchain/solbc/rpc/rpctest"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
	"github.com/rovshanmuradov/sentinel-bot/internal/wallet"
)

// unsignedTransfer собирает транзакцию так, как ее возвращает агрегатор:
// подписи обнулены, плательщик - владелец ключа.
func unsignedTransfer(t *testing.T, payer solana.PublicKey) []byte {
	t.Helper()
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1_000, payer, to).Build()},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func newSubmitter(t *testing.T, cfg SubmitterConfig, endpoints ...*rpctest.Endpoint) *Submitter {
	t.Helper()
	nodes := make([]*rpc.NodeClient, len(endpoints))
	for i, e := range endpoints {
		nodes[i] = rpc.NewNode("node-"+string(rune('a'+i)), e)
	}
	pool, err := rpc.NewPool(nodes, zaptest.NewLogger(t))
	require.NoError(t, err)
	pool.SetShuffle(rpctest.InOrder)
	return NewSubmitter(pool, cfg, zaptest.NewLogger(t))
}

func signer(key solana.PrivateKey) *wallet.Wallet {
	return &wallet.Wallet{PrivateKey: key, PublicKey: key.PublicKey()}
}

type outcomes []string

func (o *outcomes) ObserveSubmission(outcome string, _ time.Duration) { *o = append(*o, outcome) }

func TestSubmit_FailoverRebroadcastsSameSignature(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	first := &rpctest.Endpoint{SendErr: rpctest.ErrUnavailable}
	second := &rpctest.Endpoint{}
	s := newSubmitter(t, SubmitterConfig{}, first, second)
	var seen outcomes
	s.SetObserver(&seen)

	res, err := s.Submit(context.Background(), unsignedTransfer(t, key.PublicKey()), signer(key))
	require.NoError(t, err)

	assert.Equal(t, "node-b", res.Endpoint)
	assert.False(t, res.Confirmed)
	require.Len(t, first.Sent, 1)
	require.Len(t, second.Sent, 1)
	assert.Equal(t, first.Sent[0], second.Sent[0])
	assert.Equal(t, res.Signature, second.Sent[0])
	assert.Equal(t, outcomes{"sent"}, seen)
}

func TestSubmit_SignatureVerifies(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	e := &rpctest.Endpoint{}
	s := newSubmitter(t, SubmitterConfig{}, e)

	res, err := s.Submit(context.Background(), unsignedTransfer(t, key.PublicKey()), signer(key))
	require.NoError(t, err)
	assert.False(t, res.Signature.IsZero())
}

func TestSubmit_AllEndpointsFail(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	s := newSubmitter(t, SubmitterConfig{},
		&rpctest.Endpoint{SendErr: rpctest.ErrUnavailable},
		&rpctest.Endpoint{SendErr: rpctest.ErrUnavailable})

	_, err = s.Submit(context.Background(), unsignedTransfer(t, key.PublicKey()), signer(key))
	assert.ErrorIs(t, err, types.ErrProviderExhausted)
}

func TestSubmit_AlreadyProcessedCountsAsSent(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	e := &rpctest.Endpoint{SendErr: errors.New("Transaction simulation failed: This transaction has already been processed")}
	s := newSubmitter(t, SubmitterConfig{}, e)

	res, err := s.Submit(context.Background(), unsignedTransfer(t, key.PublicKey()), signer(key))
	require.NoError(t, err)
	assert.Equal(t, "node-a", res.Endpoint)
}

func TestSubmit_InvalidInput(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	e := &rpctest.Endpoint{}
	s := newSubmitter(t, SubmitterConfig{}, e)

	_, err = s.Submit(context.Background(), []byte{0xff}, signer(key))
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	// ключ не совпадает с плательщиком
	_, err = s.Submit(context.Background(), unsignedTransfer(t, other.PublicKey()), signer(key))
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.Zero(t, e.SentCount())
}

func TestSubmit_Confirmation(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	raw := unsignedTransfer(t, key.PublicKey())
	cfg := SubmitterConfig{Confirm: true, ConfirmTimeout: 200 * time.Millisecond, PollInterval: 5 * time.Millisecond}

	t.Run("confirmed", func(t *testing.T) {
		e := &rpctest.Endpoint{}
		s := newSubmitter(t, cfg, e)
		sig := signatureOf(t, raw, key)
		e.SetStatus(sig, &solanarpc.SignatureStatusesResult{ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed})

		res, err := s.Submit(context.Background(), raw, signer(key))
		require.NoError(t, err)
		assert.True(t, res.Confirmed)
	})

	t.Run("failed on chain", func(t *testing.T) {
		e := &rpctest.Endpoint{}
		s := newSubmitter(t, cfg, e)
		sig := signatureOf(t, raw, key)
		e.SetStatus(sig, &solanarpc.SignatureStatusesResult{
			ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed,
			Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		})

		_, err := s.Submit(context.Background(), raw, signer(key))
		var failed *TransactionFailedError
		require.True(t, errors.As(err, &failed))
		assert.Equal(t, sig, failed.Signature)
	})

	t.Run("timeout keeps signature", func(t *testing.T) {
		e := &rpctest.Endpoint{}
		s := newSubmitter(t, cfg, e)
		var seen outcomes
		s.SetObserver(&seen)

		res, err := s.Submit(context.Background(), raw, signer(key))
		require.NoError(t, err)
		assert.False(t, res.Confirmed)
		assert.False(t, res.Signature.IsZero())
		assert.Greater(t, e.StatusQueries, 1)
		assert.Equal(t, outcomes{"unconfirmed"}, seen)
	})
}

// signatureOf повторяет подпись: ed25519 детерминирован.
func signatureOf(t *testing.T, raw []byte, key solana.PrivateKey) solana.Signature {
	t.Helper()
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &key })
	require.NoError(t, err)
	return tx.Signatures[0]
}

func TestParseAnchorErrorLog(t *testing.T) {
	got := parseAnchorErrorLog("Program log: AnchorError occurred. Error Code: SlippageToleranceExceeded. Error Number: 6001. Error Message: Slippage tolerance exceeded.")
	assert.Equal(t, AnchorError{Code: 6001, Name: "SlippageToleranceExceeded", Msg: "Slippage tolerance exceeded"}, got)
}
