package relayer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/jinmel/safe-relay/relay"
	"github.com/jinmel/safe-relay/safe"
)

type PredictAccountArgs struct {
	// Owners defaults to the signed-in owner.
	Owners []common.Address `json:"owners"`
	// Threshold defaults to 1.
	Threshold hexutil.Uint64 `json:"threshold"`
	// Salt defaults to a fresh random value.
	Salt *safe.Salt `json:"salt,omitempty"`
}

type SendTransactionArgs struct {
	Account   common.Address  `json:"account"`
	Calls     []safe.CallArgs `json:"calls"`
	Sponsored bool            `json:"isSponsored"`
	GasLimit  *hexutil.Uint64 `json:"gasLimit,omitempty"`
	FeeToken  *common.Address `json:"feeToken,omitempty"`
}

type AccountsResponse struct {
	Owner    common.Address `json:"owner"`
	Accounts safe.Accounts  `json:"accounts"`

	// Pending lists predicted accounts that are not deployed yet.
	Pending safe.Accounts `json:"pending"`
}

type SendTransactionResponse struct {
	Task    relay.Task     `json:"task"`
	Account common.Address `json:"account"`

	// SafeTxHash is the hash the owner signed.
	SafeTxHash common.Hash `json:"safeTxHash"`
}
