package relayer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/jinmel/safe-relay/relay"
	"github.com/jinmel/safe-relay/safe"
)

type SafeAPIBackend interface {
	Accounts(ctx context.Context) (AccountsResponse, error)
	PredictAccount(ctx context.Context, args PredictAccountArgs) (safe.AccountHandle, error)
	PendingAccounts(ctx context.Context) (safe.Accounts, error)
	SendTransaction(ctx context.Context, args SendTransactionArgs) (SendTransactionResponse, error)
	TaskStatus(ctx context.Context, taskID string) (relay.Task, error)
	ConfirmDeployment(ctx context.Context, account common.Address) (safe.AccountHandle, error)
}

type safeAPI struct {
	b SafeAPIBackend
}

func NewSafeAPI(b SafeAPIBackend) *safeAPI {
	return &safeAPI{b: b}
}

func GetSafeAPI(api *safeAPI) gethrpc.API {
	return gethrpc.API{
		Namespace: "safe",
		Service:   api,
	}
}

func (api *safeAPI) Accounts(ctx context.Context) (AccountsResponse, error) {
	return api.b.Accounts(ctx)
}

func (api *safeAPI) PredictAccount(ctx context.Context, args PredictAccountArgs) (safe.AccountHandle, error) {
	return api.b.PredictAccount(ctx, args)
}

func (api *safeAPI) PendingAccounts(ctx context.Context) (safe.Accounts, error) {
	return api.b.PendingAccounts(ctx)
}

func (api *safeAPI) SendTransaction(ctx context.Context, args SendTransactionArgs) (SendTransactionResponse, error) {
	return api.b.SendTransaction(ctx, args)
}

func (api *safeAPI) TaskStatus(ctx context.Context, taskID string) (relay.Task, error) {
	return api.b.TaskStatus(ctx, taskID)
}

func (api *safeAPI) ConfirmDeployment(ctx context.Context, account common.Address) (safe.AccountHandle, error) {
	return api.b.ConfirmDeployment(ctx, account)
}
