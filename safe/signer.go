package safe

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyHolder is an owner key that can sign a 32-byte digest. Signatures are
// 65 bytes [R || S || V] with V in {0, 1} or {27, 28}.
type KeyHolder interface {
	Address() common.Address
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
}

// AccountState is the owner configuration and nonce of a deployed account.
type AccountState struct {
	Owners    []common.Address
	Threshold uint64
	Nonce     *big.Int
}

type AccountStateReader interface {
	AccountState(ctx context.Context, account common.Address) (AccountState, error)
}

// SignedRelayRequest is a composed request with one owner signature over
// the hash of its account transaction.
type SignedRelayRequest struct {
	Request   RelayRequest   `json:"request"`
	SafeTx    SafeTx         `json:"safeTx"`
	Hash      common.Hash    `json:"hash"`
	Signer    common.Address `json:"signer"`
	Signature hexutil.Bytes  `json:"signature"`
}

type AuthorizationSigner struct {
	deployment Deployment
	state      AccountStateReader
}

func NewAuthorizationSigner(d Deployment, state AccountStateReader) *AuthorizationSigner {
	return &AuthorizationSigner{deployment: d, state: state}
}

// currentOwners returns the owner set to check against and the account
// nonce. Deployed accounts are read from chain so owner changes made after
// prediction are honoured.
func (s *AuthorizationSigner) currentOwners(ctx context.Context, h AccountHandle) (OwnerConfig, *big.Int, error) {
	if !h.Deployed {
		return h.Owners, new(big.Int), nil
	}
	st, err := s.state.AccountState(ctx, h.Address)
	if err != nil {
		if KindOf(err) == 0 {
			err = NewError(KindNetworkRead, "read account state", err)
		}
		return OwnerConfig{}, nil, err
	}
	nonce := st.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	return OwnerConfig{Owners: st.Owners, Threshold: st.Threshold}, nonce, nil
}

func (s *AuthorizationSigner) Sign(ctx context.Context, req RelayRequest, key KeyHolder) (SignedRelayRequest, error) {
	if !req.Composed() {
		return SignedRelayRequest{}, NewError(KindConfiguration, "sign", ErrNotComposed)
	}
	h := req.Account()
	owners, nonce, err := s.currentOwners(ctx, h)
	if err != nil {
		return SignedRelayRequest{}, err
	}
	signer := key.Address()
	if !owners.IsOwner(signer) {
		return SignedRelayRequest{}, NewError(KindUnauthorizedSigner, "sign",
			fmt.Errorf("%s is not an owner of %s", signer, h.Address))
	}

	tx, err := NewSafeTx(req, s.deployment.MultiSendCallOnly, nonce)
	if err != nil {
		return SignedRelayRequest{}, err
	}
	hash := tx.Hash(new(big.Int).SetUint64(h.ChainID), h.Address)

	sig, err := key.SignHash(ctx, hash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SignedRelayRequest{}, fmt.Errorf("%w: %w", ErrSigningAbandoned, ctxErr)
		}
		return SignedRelayRequest{}, err
	}
	sig, err = normalizeSignature(sig)
	if err != nil {
		return SignedRelayRequest{}, NewError(KindUnauthorizedSigner, "sign", err)
	}
	if err := verifySignature(hash, sig, signer); err != nil {
		return SignedRelayRequest{}, NewError(KindUnauthorizedSigner, "sign", err)
	}

	return SignedRelayRequest{
		Request:   req,
		SafeTx:    tx,
		Hash:      hash,
		Signer:    signer,
		Signature: sig,
	}, nil
}

func normalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature is %d bytes", len(sig))
	}
	out := append([]byte(nil), sig...)
	switch out[64] {
	case 0, 1:
		out[64] += 27
	case 27, 28:
	default:
		return nil, fmt.Errorf("invalid signature recovery id %d", out[64])
	}
	return out, nil
}

// verifySignature checks that sig (V in {27, 28}) recovers to signer.
func verifySignature(hash common.Hash, sig []byte, signer common.Address) error {
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return err
	}
	if got := crypto.PubkeyToAddress(*pub); got != signer {
		return fmt.Errorf("%w: recovered %s, want %s", ErrSignatureMismatch, got, signer)
	}
	return nil
}

// RelayCall is the contract call the relay broadcasts.
type RelayCall struct {
	ChainID uint64         `json:"chainId"`
	Target  common.Address `json:"target"`
	Data    hexutil.Bytes  `json:"data"`
	Options Options        `json:"options"`
}

// RelayCall encodes the signed request for the relay. A predicted account is
// deployed in the same relayed call through MultiSendCallOnly.
func (s SignedRelayRequest) RelayCall(p *AddressPredictor) (RelayCall, error) {
	h := s.Request.Account()
	exec, err := s.SafeTx.ExecTransactionData(s.Signature)
	if err != nil {
		return RelayCall{}, err
	}
	call := RelayCall{
		ChainID: h.ChainID,
		Target:  h.Address,
		Data:    exec,
		Options: s.Request.Options(),
	}
	if h.Deployed {
		return call, nil
	}
	if h.Salt == nil {
		return RelayCall{}, NewError(KindConfiguration, "relay call", errors.New("predicted account has no salt"))
	}
	predicted, err := p.Predict(h.Owners, *h.Salt)
	if err != nil {
		return RelayCall{}, err
	}
	if predicted != h.Address {
		return RelayCall{}, NewError(KindConfiguration, "relay call",
			fmt.Errorf("handle address %s does not match prediction %s", h.Address, predicted))
	}
	deploy, err := p.DeploymentCall(h.Owners, *h.Salt)
	if err != nil {
		return RelayCall{}, err
	}
	batch := EncodeMultiSend([]MetaTransactionData{
		deploy,
		{To: h.Address, Value: new(big.Int), Data: exec},
	})
	data, err := MultiSendABI.Pack("multiSend", batch)
	if err != nil {
		return RelayCall{}, NewError(KindConfiguration, "encode multisend", err)
	}
	call.Target = p.Deployment().MultiSendCallOnly
	call.Data = data
	return call, nil
}
