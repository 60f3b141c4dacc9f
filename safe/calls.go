package safe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

// MetaTransactionData is one call executed by the account. Order within a
// request is execution order.
type MetaTransactionData struct {
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value"`
	Data      hexutil.Bytes  `json:"data"`
	Operation Operation      `json:"operation"`
}

func (m MetaTransactionData) copy() MetaTransactionData {
	out := MetaTransactionData{
		To:        m.To,
		Value:     new(big.Int),
		Data:      append(hexutil.Bytes(nil), m.Data...),
		Operation: m.Operation,
	}
	if m.Value != nil {
		out.Value.Set(m.Value)
	}
	return out
}

// CallArgs is the untyped form calls arrive in from JSON and the CLI.
type CallArgs struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

func (a CallArgs) parse() (MetaTransactionData, error) {
	if !common.IsHexAddress(a.To) {
		return MetaTransactionData{}, fmt.Errorf("%w: malformed to address %q", ErrInvalidCall, a.To)
	}
	value, err := parseValue(a.Value)
	if err != nil {
		return MetaTransactionData{}, err
	}
	var data []byte
	if a.Data != "" && a.Data != "0x" {
		data, err = hexutil.Decode(a.Data)
		if err != nil {
			return MetaTransactionData{}, fmt.Errorf("%w: data: %v", ErrInvalidCall, err)
		}
	}
	return MetaTransactionData{
		To:    common.HexToAddress(a.To),
		Value: value,
		Data:  data,
	}, nil
}

// parseValue accepts a base-10 or 0x-hex integer in uint256 range. An empty
// value means zero.
func parseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: negative value %s", ErrInvalidCall, s)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" && len(s) > 2 {
			digits = "0"
		}
		v, err = uint256.FromHex("0x" + digits)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: value %q: %v", ErrInvalidCall, s, err)
	}
	return v.ToBig(), nil
}

func checkCall(m MetaTransactionData) error {
	if m.Operation != Call && m.Operation != DelegateCall {
		return fmt.Errorf("%w: unknown operation %d", ErrInvalidCall, m.Operation)
	}
	if m.Value == nil {
		return nil
	}
	if m.Value.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrInvalidCall, m.Value)
	}
	if _, overflow := uint256.FromBig(m.Value); overflow {
		return fmt.Errorf("%w: value %s exceeds uint256", ErrInvalidCall, m.Value)
	}
	return nil
}

// TransactionBuilder turns application calls into an unsigned RelayRequest.
type TransactionBuilder struct{}

func NewTransactionBuilder() *TransactionBuilder { return &TransactionBuilder{} }

func (b *TransactionBuilder) Build(h AccountHandle, calls []CallArgs) (RelayRequest, error) {
	if len(calls) == 0 {
		return RelayRequest{}, NewError(KindEmptyTransaction, "build", nil)
	}
	txs := make([]MetaTransactionData, len(calls))
	for i, c := range calls {
		tx, err := c.parse()
		if err != nil {
			return RelayRequest{}, NewError(KindConfiguration, fmt.Sprintf("build call %d", i), err)
		}
		txs[i] = tx
	}
	return b.BuildCalls(h, txs)
}

func (b *TransactionBuilder) BuildCalls(h AccountHandle, calls []MetaTransactionData) (RelayRequest, error) {
	if len(calls) == 0 {
		return RelayRequest{}, NewError(KindEmptyTransaction, "build", nil)
	}
	if h.Address == (common.Address{}) {
		return RelayRequest{}, NewError(KindConfiguration, "build", fmt.Errorf("account handle has no address"))
	}
	txs := make([]MetaTransactionData, len(calls))
	for i, c := range calls {
		if err := checkCall(c); err != nil {
			return RelayRequest{}, NewError(KindConfiguration, fmt.Sprintf("build call %d", i), err)
		}
		// Batches execute through MultiSendCallOnly, which reverts on delegate calls.
		if len(calls) > 1 && c.Operation == DelegateCall {
			return RelayRequest{}, NewError(KindConfiguration, fmt.Sprintf("build call %d", i),
				fmt.Errorf("%w: delegate call in a batch", ErrInvalidCall))
		}
		txs[i] = c.copy()
	}
	return RelayRequest{account: h, transactions: txs}, nil
}

// EncodeMultiSend packs calls in the MultiSend layout: for each call
// operation (1 byte), to (20), value (32), data length (32), data.
func EncodeMultiSend(calls []MetaTransactionData) []byte {
	var out []byte
	for _, c := range calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		out = append(out, byte(c.Operation))
		out = append(out, c.To.Bytes()...)
		out = append(out, common.LeftPadBytes(value.Bytes(), 32)...)
		out = append(out, common.LeftPadBytes(big.NewInt(int64(len(c.Data))).Bytes(), 32)...)
		out = append(out, c.Data...)
	}
	return out
}
