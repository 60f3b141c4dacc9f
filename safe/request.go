package safe

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
)

// NativeToken is the relay's marker for paying fees in the native currency.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Options are the relay policy attached to a request.
type Options struct {
	Sponsored bool           `json:"isSponsored"`
	GasLimit  *uint64        `json:"gasLimit,omitempty"`
	FeeToken  common.Address `json:"feeToken"`
}

func (o Options) copy() Options {
	out := o
	if o.GasLimit != nil {
		gl := *o.GasLimit
		out.GasLimit = &gl
	}
	return out
}

// RelayRequest is an immutable batch of calls bound to one account. Any
// change produces a new value; accessors hand out copies.
type RelayRequest struct {
	account      AccountHandle
	transactions []MetaTransactionData
	options      Options
	composed     bool
}

func (r RelayRequest) Account() AccountHandle { return r.account }

func (r RelayRequest) Transactions() []MetaTransactionData {
	out := make([]MetaTransactionData, len(r.transactions))
	for i, tx := range r.transactions {
		out[i] = tx.copy()
	}
	return out
}

func (r RelayRequest) Options() Options { return r.options.copy() }

// Composed reports whether relay options have been merged in.
func (r RelayRequest) Composed() bool { return r.composed }

type relayRequestJSON struct {
	Account      AccountHandle         `json:"account"`
	Transactions []MetaTransactionData `json:"transactions"`
	Options      *Options              `json:"options,omitempty"`
}

// MarshalJSON is the canonical serialized form of the request.
func (r RelayRequest) MarshalJSON() ([]byte, error) {
	enc := relayRequestJSON{
		Account:      r.account,
		Transactions: r.transactions,
	}
	if r.composed {
		opts := r.options
		enc.Options = &opts
	}
	return json.Marshal(enc)
}

// Policy is what the caller chooses about relaying.
type Policy struct {
	Sponsored bool
	GasLimit  *uint64
	// FeeToken is the token paying the relay when not sponsored; the zero
	// address or NativeToken mean the native currency.
	FeeToken common.Address
}

// RelayRequestComposer attaches relay policy to built requests and checks
// that unsponsored requests pay the relay.
type RelayRequestComposer struct {
	feeCollector common.Address
}

func NewRelayRequestComposer(feeCollector common.Address) *RelayRequestComposer {
	return &RelayRequestComposer{feeCollector: feeCollector}
}

func (c *RelayRequestComposer) Compose(req RelayRequest, policy Policy) (RelayRequest, error) {
	if len(req.transactions) == 0 {
		return RelayRequest{}, NewError(KindEmptyTransaction, "compose", nil)
	}
	if policy.GasLimit != nil && *policy.GasLimit == 0 {
		return RelayRequest{}, NewError(KindConfiguration, "compose", fmt.Errorf("gas limit must be positive"))
	}
	opts := Options{Sponsored: policy.Sponsored, GasLimit: policy.GasLimit}
	if !policy.Sponsored {
		if c.feeCollector == (common.Address{}) {
			return RelayRequest{}, NewError(KindConfiguration, "compose", fmt.Errorf("no relay fee collector configured"))
		}
		opts.FeeToken = policy.FeeToken
		if opts.FeeToken == (common.Address{}) {
			opts.FeeToken = NativeToken
		}
		if !c.hasFeePayment(req.transactions, opts.FeeToken) {
			return RelayRequest{}, NewError(KindRelayRejected, "compose", ErrMissingFeePayment)
		}
	}
	return RelayRequest{
		account:      req.account,
		transactions: req.Transactions(),
		options:      opts.copy(),
		composed:     true,
	}, nil
}

func (c *RelayRequestComposer) hasFeePayment(txs []MetaTransactionData, feeToken common.Address) bool {
	for _, tx := range txs {
		if tx.Operation != Call {
			continue
		}
		if feeToken == NativeToken {
			if tx.To == c.feeCollector && tx.Value != nil && tx.Value.Sign() > 0 {
				return true
			}
			continue
		}
		if tx.To == feeToken && c.isTokenFeeTransfer(tx.Data) {
			return true
		}
	}
	return false
}

func (c *RelayRequestComposer) isTokenFeeTransfer(data []byte) bool {
	method := ERC20ABI.Methods["transfer"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return false
	}
	to, ok := args[0].(common.Address)
	if !ok || to != c.feeCollector {
		return false
	}
	amount, ok := args[1].(*big.Int)
	return ok && amount.Sign() > 0
}
