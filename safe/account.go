package safe

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountHandle identifies an account that is either deployed or only
// predicted. Salt is set only while the account is not deployed.
type AccountHandle struct {
	Address  common.Address `json:"address"`
	ChainID  uint64         `json:"chainId"`
	Deployed bool           `json:"deployed"`
	Owners   OwnerConfig    `json:"owners"`
	Salt     *Salt          `json:"salt,omitempty"`
}

func (h AccountHandle) String() string {
	state := "predicted"
	if h.Deployed {
		state = "deployed"
	}
	return fmt.Sprintf("%s(%s on %d)", h.Address, state, h.ChainID)
}

// Accounts is an ordered set of handles. An empty set is a normal result.
type Accounts []AccountHandle

func (a Accounts) Empty() bool { return len(a) == 0 }

func (a Accounts) Addresses() []common.Address {
	out := make([]common.Address, len(a))
	for i, h := range a {
		out[i] = h.Address
	}
	return out
}

// Select returns the handle for addr. There is no default choice.
func (a Accounts) Select(addr common.Address) (AccountHandle, error) {
	for _, h := range a {
		if h.Address == addr {
			return h, nil
		}
	}
	return AccountHandle{}, NewError(KindConfiguration, "select account", fmt.Errorf("%w: %s", ErrAccountNotSelected, addr))
}

// AccountIndex lists accounts associated with an owner. Results are
// eventually consistent: a fresh deployment may be missing.
type AccountIndex interface {
	AccountsByOwner(ctx context.Context, owner common.Address) ([]common.Address, error)
}

type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type AccountResolver struct {
	chainID   uint64
	index     AccountIndex
	predictor *AddressPredictor
	code      CodeReader
}

func NewAccountResolver(index AccountIndex, predictor *AddressPredictor, code CodeReader) *AccountResolver {
	return &AccountResolver{
		chainID:   predictor.Deployment().ChainID,
		index:     index,
		predictor: predictor,
		code:      code,
	}
}

// Resolve returns the deployed accounts the index knows for owner. It never
// predicts; an empty result asks the caller to call Predict explicitly.
func (r *AccountResolver) Resolve(ctx context.Context, owner common.Address) (Accounts, error) {
	addrs, err := r.index.AccountsByOwner(ctx, owner)
	if err != nil {
		if KindOf(err) == 0 {
			err = NewError(KindNetworkRead, "resolve accounts", err)
		}
		return nil, err
	}
	return r.FromAddresses(addrs), nil
}

// FromAddresses turns externally reported addresses into deployed handles,
// dropping duplicates while keeping the first occurrence.
func (r *AccountResolver) FromAddresses(addrs []common.Address) Accounts {
	accounts := make(Accounts, 0, len(addrs))
	seen := make(map[common.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		accounts = append(accounts, AccountHandle{
			Address:  addr,
			ChainID:  r.chainID,
			Deployed: true,
		})
	}
	return accounts
}

// Predict builds a not-yet-deployed handle for cfg and salt.
func (r *AccountResolver) Predict(cfg OwnerConfig, salt Salt) (AccountHandle, error) {
	addr, err := r.predictor.Predict(cfg, salt)
	if err != nil {
		return AccountHandle{}, err
	}
	s := salt
	return AccountHandle{
		Address:  addr,
		ChainID:  r.chainID,
		Deployed: false,
		Owners: OwnerConfig{
			Owners:    append([]common.Address(nil), cfg.Owners...),
			Threshold: cfg.Threshold,
		},
		Salt: &s,
	}, nil
}

// ConfirmDeployment flips a predicted handle to deployed once contract code
// exists at its address. The boolean reports whether code was found.
func (r *AccountResolver) ConfirmDeployment(ctx context.Context, h AccountHandle) (AccountHandle, bool, error) {
	if h.Deployed {
		return h, true, nil
	}
	code, err := r.code.CodeAt(ctx, h.Address, nil)
	if err != nil {
		return h, false, NewError(KindNetworkRead, "confirm deployment", err)
	}
	if len(code) == 0 {
		return h, false, nil
	}
	h.Deployed = true
	h.Salt = nil
	return h, true, nil
}
