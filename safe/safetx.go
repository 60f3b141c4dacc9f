package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	domainSeparatorTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash          = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// SafeTx is the transaction the account executes and its owners sign.
// Relayed transactions carry no in-account gas refund, so the gas fields
// stay zero.
type SafeTx struct {
	To             common.Address `json:"to"`
	Value          *big.Int       `json:"value"`
	Data           hexutil.Bytes  `json:"data"`
	Operation      Operation      `json:"operation"`
	SafeTxGas      *big.Int       `json:"safeTxGas"`
	BaseGas        *big.Int       `json:"baseGas"`
	GasPrice       *big.Int       `json:"gasPrice"`
	GasToken       common.Address `json:"gasToken"`
	RefundReceiver common.Address `json:"refundReceiver"`
	Nonce          *big.Int       `json:"nonce"`
}

// NewSafeTx maps the request onto a single account transaction: one call
// is executed directly, several are batched through MultiSendCallOnly.
func NewSafeTx(req RelayRequest, multiSend common.Address, nonce *big.Int) (SafeTx, error) {
	tx := SafeTx{
		SafeTxGas: new(big.Int),
		BaseGas:   new(big.Int),
		GasPrice:  new(big.Int),
		Nonce:     new(big.Int).Set(nonce),
	}
	txs := req.Transactions()
	if len(txs) == 1 {
		tx.To = txs[0].To
		tx.Value = txs[0].Value
		tx.Data = txs[0].Data
		tx.Operation = txs[0].Operation
		return tx, nil
	}
	data, err := MultiSendABI.Pack("multiSend", EncodeMultiSend(txs))
	if err != nil {
		return SafeTx{}, NewError(KindConfiguration, "encode multisend", err)
	}
	tx.To = multiSend
	tx.Value = new(big.Int)
	tx.Data = data
	tx.Operation = DelegateCall
	return tx, nil
}

func word(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func bigWord(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return word(v.Bytes())
}

func DomainSeparator(chainID *big.Int, account common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainSeparatorTypeHash.Bytes(),
		bigWord(chainID),
		word(account.Bytes()),
	)
}

func (tx SafeTx) structHash() common.Hash {
	return crypto.Keccak256Hash(
		safeTxTypeHash.Bytes(),
		word(tx.To.Bytes()),
		bigWord(tx.Value),
		crypto.Keccak256(tx.Data),
		word([]byte{byte(tx.Operation)}),
		bigWord(tx.SafeTxGas),
		bigWord(tx.BaseGas),
		bigWord(tx.GasPrice),
		word(tx.GasToken.Bytes()),
		word(tx.RefundReceiver.Bytes()),
		bigWord(tx.Nonce),
	)
}

// Hash is the EIP-712 digest the account verifies signatures against.
func (tx SafeTx) Hash(chainID *big.Int, account common.Address) common.Hash {
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		DomainSeparator(chainID, account).Bytes(),
		tx.structHash().Bytes(),
	)
}

// ExecTransactionData encodes the execTransaction call carrying signatures.
func (tx SafeTx) ExecTransactionData(signatures []byte) ([]byte, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	data, err := SafeABI.Pack("execTransaction",
		tx.To, value, []byte(tx.Data), uint8(tx.Operation),
		tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, signatures,
	)
	if err != nil {
		return nil, NewError(KindConfiguration, "encode execTransaction", err)
	}
	return data, nil
}
