package safe

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type testKey struct {
	key *ecdsa.PrivateKey
	err error
}

func newTestKey(t *testing.T) *testKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &testKey{key: key}
}

func (k *testKey) Address() common.Address { return crypto.PubkeyToAddress(k.key.PublicKey) }

func (k *testKey) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if k.err != nil {
		return nil, k.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return crypto.Sign(hash.Bytes(), k.key)
}

type stubState struct {
	state AccountState
	err   error
	reads int
}

func (s *stubState) AccountState(ctx context.Context, account common.Address) (AccountState, error) {
	s.reads++
	return s.state, s.err
}

func composed(t *testing.T, h AccountHandle, calls ...MetaTransactionData) RelayRequest {
	req, err := NewTransactionBuilder().BuildCalls(h, calls)
	require.NoError(t, err)
	req, err = NewRelayRequestComposer(common.Address{}).Compose(req, Policy{Sponsored: true})
	require.NoError(t, err)
	return req
}

func TestSignDeployedAccount(t *testing.T) {
	key := newTestKey(t)
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	state := &stubState{state: AccountState{Owners: []common.Address{key.Address()}, Threshold: 1, Nonce: big.NewInt(4)}}
	s := NewAuthorizationSigner(testDeployment(), state)

	req := composed(t, deployedHandle(account), MetaTransactionData{To: receiver, Value: new(big.Int)})
	signed, err := s.Sign(context.Background(), req, key)
	require.NoError(t, err)
	require.Equal(t, 1, state.reads)
	require.Equal(t, key.Address(), signed.Signer)
	require.Equal(t, int64(4), signed.SafeTx.Nonce.Int64())
	require.Equal(t, signed.SafeTx.Hash(big.NewInt(5), account), signed.Hash)
	require.Len(t, signed.Signature, 65)
	require.Contains(t, []byte{27, 28}, signed.Signature[64])
	require.NoError(t, verifySignature(signed.Hash, signed.Signature, key.Address()))
}

func TestSignPredictedAccountUsesLocalOwners(t *testing.T) {
	key := newTestKey(t)
	state := &stubState{err: errors.New("must not be called")}
	s := NewAuthorizationSigner(testDeployment(), state)

	resolver := NewAccountResolver(nil, testPredictor(t), nil)
	h, err := resolver.Predict(OwnerConfig{Owners: []common.Address{key.Address()}, Threshold: 1}, saltOf(3))
	require.NoError(t, err)

	signed, err := s.Sign(context.Background(), composed(t, h, MetaTransactionData{To: receiver, Value: new(big.Int)}), key)
	require.NoError(t, err)
	require.Zero(t, state.reads)
	require.Zero(t, signed.SafeTx.Nonce.Sign())
}

func TestSignRejectsNonOwner(t *testing.T) {
	// Account owned by A; key holder C is not an owner.
	key := newTestKey(t)
	state := &stubState{state: AccountState{Owners: []common.Address{ownerA}, Threshold: 1, Nonce: new(big.Int)}}
	s := NewAuthorizationSigner(testDeployment(), state)

	_, err := s.Sign(context.Background(), composed(t, deployedHandle(ownerB), MetaTransactionData{To: receiver}), key)
	require.ErrorIs(t, err, ErrUnauthorizedSigner)
	require.False(t, IsRetriable(err))
}

func TestSignRejectsSupersededOwner(t *testing.T) {
	key := newTestKey(t)
	h := deployedHandle(ownerB)
	// The handle still remembers the key as owner, the chain does not.
	h.Owners = OwnerConfig{Owners: []common.Address{key.Address()}, Threshold: 1}
	state := &stubState{state: AccountState{Owners: []common.Address{ownerA, ownerC}, Threshold: 1, Nonce: big.NewInt(9)}}
	s := NewAuthorizationSigner(testDeployment(), state)

	_, err := s.Sign(context.Background(), composed(t, h, MetaTransactionData{To: receiver}), key)
	require.ErrorIs(t, err, ErrUnauthorizedSigner)
}

func TestSignStateReadFailure(t *testing.T) {
	key := newTestKey(t)
	s := NewAuthorizationSigner(testDeployment(), &stubState{err: errors.New("connection refused")})
	_, err := s.Sign(context.Background(), composed(t, deployedHandle(ownerB), MetaTransactionData{To: receiver}), key)
	require.ErrorIs(t, err, ErrNetworkRead)
	require.True(t, IsRetriable(err))
}

func TestSignRequiresComposedRequest(t *testing.T) {
	key := newTestKey(t)
	req, err := NewTransactionBuilder().BuildCalls(deployedHandle(ownerB), []MetaTransactionData{{To: receiver}})
	require.NoError(t, err)
	_, err = NewAuthorizationSigner(testDeployment(), &stubState{}).Sign(context.Background(), req, key)
	require.ErrorIs(t, err, ErrNotComposed)
}

func TestSignKeyHolderErrorsPassThrough(t *testing.T) {
	key := newTestKey(t)
	rejected := errors.New("user rejected the request")
	key.err = rejected
	state := &stubState{state: AccountState{Owners: []common.Address{key.Address()}, Threshold: 1}}
	s := NewAuthorizationSigner(testDeployment(), state)

	_, err := s.Sign(context.Background(), composed(t, deployedHandle(ownerB), MetaTransactionData{To: receiver}), key)
	require.Equal(t, rejected, err)
}

func TestSignAbandoned(t *testing.T) {
	key := newTestKey(t)
	state := &stubState{state: AccountState{Owners: []common.Address{key.Address()}, Threshold: 1}}
	s := NewAuthorizationSigner(testDeployment(), state)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sign(ctx, composed(t, deployedHandle(ownerB), MetaTransactionData{To: receiver}), key)
	require.ErrorIs(t, err, ErrSigningAbandoned)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSafeTxHashBindsNonceAndAccount(t *testing.T) {
	req := composed(t, deployedHandle(ownerB), MetaTransactionData{To: receiver, Value: big.NewInt(1)})
	tx0, err := NewSafeTx(req, common.Address{}, big.NewInt(0))
	require.NoError(t, err)
	tx1, err := NewSafeTx(req, common.Address{}, big.NewInt(1))
	require.NoError(t, err)

	chain := big.NewInt(5)
	require.Equal(t, tx0.Hash(chain, ownerB), tx0.Hash(chain, ownerB))
	require.NotEqual(t, tx0.Hash(chain, ownerB), tx1.Hash(chain, ownerB))
	require.NotEqual(t, tx0.Hash(chain, ownerB), tx0.Hash(chain, ownerC))
	require.NotEqual(t, tx0.Hash(chain, ownerB), tx0.Hash(big.NewInt(1), ownerB))
}

func TestSafeTxBatchesThroughMultiSend(t *testing.T) {
	d := testDeployment()
	req := composed(t, deployedHandle(ownerB),
		MetaTransactionData{To: receiver, Value: big.NewInt(1)},
		MetaTransactionData{To: ownerC, Value: big.NewInt(2)},
	)
	tx, err := NewSafeTx(req, d.MultiSendCallOnly, new(big.Int))
	require.NoError(t, err)
	require.Equal(t, d.MultiSendCallOnly, tx.To)
	require.Equal(t, DelegateCall, tx.Operation)

	args, err := MultiSendABI.Methods["multiSend"].Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	require.Equal(t, EncodeMultiSend(req.Transactions()), args[0])
}

func TestRelayCallDeployed(t *testing.T) {
	key := newTestKey(t)
	state := &stubState{state: AccountState{Owners: []common.Address{key.Address()}, Threshold: 1, Nonce: new(big.Int)}}
	s := NewAuthorizationSigner(testDeployment(), state)
	signed, err := s.Sign(context.Background(), composed(t, deployedHandle(ownerB), MetaTransactionData{To: receiver}), key)
	require.NoError(t, err)

	call, err := signed.RelayCall(testPredictor(t))
	require.NoError(t, err)
	require.Equal(t, ownerB, call.Target)
	require.Equal(t, uint64(5), call.ChainID)
	require.Equal(t, SafeABI.Methods["execTransaction"].ID, []byte(call.Data[:4]))
	require.True(t, call.Options.Sponsored)
}

func TestRelayCallDeploysPredictedAccount(t *testing.T) {
	key := newTestKey(t)
	p := testPredictor(t)
	h, err := NewAccountResolver(nil, p, nil).Predict(OwnerConfig{Owners: []common.Address{key.Address()}, Threshold: 1}, saltOf(8))
	require.NoError(t, err)

	s := NewAuthorizationSigner(p.Deployment(), &stubState{})
	signed, err := s.Sign(context.Background(), composed(t, h, MetaTransactionData{To: receiver}), key)
	require.NoError(t, err)

	call, err := signed.RelayCall(p)
	require.NoError(t, err)
	require.Equal(t, p.Deployment().MultiSendCallOnly, call.Target)
	require.Equal(t, MultiSendABI.Methods["multiSend"].ID, []byte(call.Data[:4]))

	// A handle whose salt no longer matches its address must not be relayed.
	other := saltOf(9)
	signed.Request.account.Salt = &other
	_, err = signed.RelayCall(p)
	require.ErrorIs(t, err, ErrConfiguration)
}
