package sources

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/jinmel/safe-relay/safe"
)

// SafeReader reads account state over a chain RPC connection. An
// *ethclient.Client satisfies bind.ContractCaller.
type SafeReader struct {
	log    log.Logger
	caller bind.ContractCaller
}

func NewSafeReader(log log.Logger, caller bind.ContractCaller) *SafeReader {
	return &SafeReader{log: log, caller: caller}
}

func (r *SafeReader) call(ctx context.Context, account common.Address, method string) (interface{}, error) {
	contract := bind.NewBoundContract(account, safe.SafeABI, r.caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		if errors.Is(err, bind.ErrNoCode) {
			return nil, safe.NewError(safe.KindConfiguration, method, fmt.Errorf("no account deployed at %s", account))
		}
		return nil, safe.NewError(safe.KindNetworkRead, method, err)
	}
	if len(out) != 1 {
		return nil, safe.NewError(safe.KindNetworkRead, method, fmt.Errorf("unexpected result count %d", len(out)))
	}
	return out[0], nil
}

// AccountState reads the current owners, threshold and nonce.
func (r *SafeReader) AccountState(ctx context.Context, account common.Address) (safe.AccountState, error) {
	rawOwners, err := r.call(ctx, account, "getOwners")
	if err != nil {
		return safe.AccountState{}, err
	}
	rawThreshold, err := r.call(ctx, account, "getThreshold")
	if err != nil {
		return safe.AccountState{}, err
	}
	rawNonce, err := r.call(ctx, account, "nonce")
	if err != nil {
		return safe.AccountState{}, err
	}

	owners, ok := rawOwners.([]common.Address)
	if !ok {
		return safe.AccountState{}, safe.NewError(safe.KindNetworkRead, "getOwners", fmt.Errorf("unexpected type %T", rawOwners))
	}
	threshold, ok := rawThreshold.(*big.Int)
	if !ok || !threshold.IsUint64() {
		return safe.AccountState{}, safe.NewError(safe.KindNetworkRead, "getThreshold", fmt.Errorf("unexpected threshold %v", rawThreshold))
	}
	nonce, ok := rawNonce.(*big.Int)
	if !ok {
		return safe.AccountState{}, safe.NewError(safe.KindNetworkRead, "nonce", fmt.Errorf("unexpected nonce %v", rawNonce))
	}

	r.log.Debug("Read account state", "account", account, "owners", len(owners), "threshold", threshold, "nonce", nonce)
	return safe.AccountState{
		Owners:    owners,
		Threshold: threshold.Uint64(),
		Nonce:     nonce,
	}, nil
}

func (r *SafeReader) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	code, err := r.caller.CodeAt(ctx, account, blockNumber)
	if err != nil {
		return nil, safe.NewError(safe.KindNetworkRead, "code at", err)
	}
	return code, nil
}
