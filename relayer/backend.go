package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/jinmel/safe-relay/identity"
	"github.com/jinmel/safe-relay/metrics"
	"github.com/jinmel/safe-relay/relay"
	"github.com/jinmel/safe-relay/safe"
	"github.com/jinmel/safe-relay/store"
)

type Metricer interface {
	relay.Metricer
	RecordSignature(outcome string)
	RecordPrediction()
}

// Backend sequences sign-in, account resolution, request building, signing
// and relay submission for one chain.
type Backend struct {
	log     log.Logger
	chainID uint64

	identity  identity.Provider
	predictor *safe.AddressPredictor
	resolver  *safe.AccountResolver
	builder   *safe.TransactionBuilder
	composer  *safe.RelayRequestComposer
	signer    *safe.AuthorizationSigner
	submitter *relay.Submitter
	handles   *store.HandleStore
	metrics   Metricer

	retry        relay.RetryPolicy
	pollInterval time.Duration
}

type BackendConfig struct {
	Deployment   safe.Deployment
	FeeCollector common.Address
	Retry        relay.RetryPolicy
	PollInterval time.Duration
}

// Collaborators are the external services the backend talks to.
type Collaborators struct {
	Identity identity.Provider
	Index    safe.AccountIndex
	Code     safe.CodeReader
	State    safe.AccountStateReader
	Relay    relay.Service
	Handles  *store.HandleStore
	Metrics  Metricer
}

func NewBackend(log log.Logger, cfg BackendConfig, c Collaborators) (*Backend, error) {
	predictor, err := safe.NewAddressPredictor(cfg.Deployment)
	if err != nil {
		return nil, err
	}
	m := c.Metrics
	if m == nil {
		m = metrics.NoopMetrics
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Backend{
		log:          log,
		chainID:      cfg.Deployment.ChainID,
		identity:     c.Identity,
		predictor:    predictor,
		resolver:     safe.NewAccountResolver(c.Index, predictor, c.Code),
		builder:      safe.NewTransactionBuilder(),
		composer:     safe.NewRelayRequestComposer(cfg.FeeCollector),
		signer:       safe.NewAuthorizationSigner(cfg.Deployment, c.State),
		submitter:    relay.NewSubmitter(log, c.Relay, predictor, m),
		handles:      c.Handles,
		metrics:      m,
		retry:        cfg.Retry,
		pollInterval: interval,
	}, nil
}

func (b *Backend) ChainID() uint64 { return b.chainID }

func (b *Backend) SignIn(ctx context.Context) (identity.Session, error) {
	return b.identity.SignIn(ctx)
}

// Accounts lists the owner's deployed accounts and the predictions the
// owner is part of. Accounts known to the identity session take precedence
// over the indexer.
func (b *Backend) Accounts(ctx context.Context) (AccountsResponse, error) {
	session, err := b.SignIn(ctx)
	if err != nil {
		return AccountsResponse{}, err
	}
	accounts, err := b.deployedAccounts(ctx, session)
	if err != nil {
		return AccountsResponse{}, err
	}
	stored, err := b.PendingAccounts(ctx)
	if err != nil {
		return AccountsResponse{}, err
	}
	pending := make(safe.Accounts, 0, len(stored))
	for _, h := range stored {
		if h.Owners.IsOwner(session.Owner) {
			pending = append(pending, h)
		}
	}
	b.log.Info("Resolved accounts", "owner", session.Owner, "deployed", len(accounts), "pending", len(pending))
	return AccountsResponse{Owner: session.Owner, Accounts: accounts, Pending: pending}, nil
}

func (b *Backend) deployedAccounts(ctx context.Context, session identity.Session) (safe.Accounts, error) {
	if len(session.KnownAccounts) > 0 {
		return b.resolver.FromAddresses(session.KnownAccounts), nil
	}
	return b.resolver.Resolve(ctx, session.Owner)
}

// PredictAccount predicts a new account address and remembers the handle
// until the account is deployed.
func (b *Backend) PredictAccount(ctx context.Context, args PredictAccountArgs) (safe.AccountHandle, error) {
	owners := args.Owners
	if len(owners) == 0 {
		session, err := b.SignIn(ctx)
		if err != nil {
			return safe.AccountHandle{}, err
		}
		owners = []common.Address{session.Owner}
	}
	threshold := uint64(args.Threshold)
	if threshold == 0 {
		threshold = 1
	}
	cfg, err := safe.NewOwnerConfig(owners, threshold)
	if err != nil {
		return safe.AccountHandle{}, err
	}

	var salt safe.Salt
	if args.Salt != nil {
		salt = *args.Salt
	} else if salt, err = safe.NewSalt(); err != nil {
		return safe.AccountHandle{}, safe.NewError(safe.KindConfiguration, "predict", err)
	}

	h, err := b.resolver.Predict(cfg, salt)
	if err != nil {
		return safe.AccountHandle{}, err
	}
	if err := b.handles.Put(h); err != nil {
		return safe.AccountHandle{}, err
	}
	b.metrics.RecordPrediction()
	b.log.Info("Predicted account", "account", h.Address, "owners", len(cfg.Owners), "threshold", cfg.Threshold, "salt", salt)
	return h, nil
}

func (b *Backend) PendingAccounts(ctx context.Context) (safe.Accounts, error) {
	return b.handles.List(b.chainID)
}

// handle returns the handle to act for account. Stored predictions are
// checked for deployment first so a deployed account is never deployed again.
// Any other account must be one of the owner's resolved accounts or already
// have code, since the index may lag a fresh deployment.
func (b *Backend) handle(ctx context.Context, session identity.Session, account common.Address) (safe.AccountHandle, error) {
	stored, ok, err := b.handles.Get(b.chainID, account)
	if err != nil {
		return safe.AccountHandle{}, err
	}
	if ok {
		return b.confirm(ctx, stored)
	}
	accounts, err := b.deployedAccounts(ctx, session)
	if err != nil {
		return safe.AccountHandle{}, err
	}
	h, selectErr := accounts.Select(account)
	if selectErr == nil {
		return h, nil
	}
	h, deployed, err := b.resolver.ConfirmDeployment(ctx, safe.AccountHandle{Address: account, ChainID: b.chainID})
	if err != nil {
		return safe.AccountHandle{}, err
	}
	if !deployed {
		return safe.AccountHandle{}, selectErr
	}
	return h, nil
}

func (b *Backend) confirm(ctx context.Context, h safe.AccountHandle) (safe.AccountHandle, error) {
	confirmed, deployed, err := b.resolver.ConfirmDeployment(ctx, h)
	if err != nil {
		return safe.AccountHandle{}, err
	}
	if deployed {
		if err := b.handles.Delete(h.ChainID, h.Address); err != nil {
			return safe.AccountHandle{}, err
		}
		b.log.Info("Account deployed", "account", h.Address)
	}
	return confirmed, nil
}

func (b *Backend) ConfirmDeployment(ctx context.Context, account common.Address) (safe.AccountHandle, error) {
	stored, ok, err := b.handles.Get(b.chainID, account)
	if err != nil {
		return safe.AccountHandle{}, err
	}
	if !ok {
		return safe.AccountHandle{}, safe.NewError(safe.KindConfiguration, "confirm deployment",
			fmt.Errorf("no predicted account %s", account))
	}
	return b.confirm(ctx, stored)
}

// SendTransaction builds, signs and relays calls from account.
func (b *Backend) SendTransaction(ctx context.Context, args SendTransactionArgs) (SendTransactionResponse, error) {
	session, err := b.SignIn(ctx)
	if err != nil {
		return SendTransactionResponse{}, err
	}
	h, err := b.handle(ctx, session, args.Account)
	if err != nil {
		return SendTransactionResponse{}, err
	}
	req, err := b.builder.Build(h, args.Calls)
	if err != nil {
		return SendTransactionResponse{}, err
	}

	policy := safe.Policy{Sponsored: args.Sponsored}
	if args.GasLimit != nil {
		gl := uint64(*args.GasLimit)
		policy.GasLimit = &gl
	}
	if args.FeeToken != nil {
		policy.FeeToken = *args.FeeToken
	}
	req, err = b.composer.Compose(req, policy)
	if err != nil {
		return SendTransactionResponse{}, err
	}

	key, err := b.identity.Signer(ctx)
	if err != nil {
		return SendTransactionResponse{}, err
	}
	signed, err := b.signer.Sign(ctx, req, key)
	if err != nil {
		b.metrics.RecordSignature(outcome(err))
		return SendTransactionResponse{}, err
	}
	b.metrics.RecordSignature("ok")

	task, err := b.submitter.SubmitWithRetry(ctx, signed, b.retry)
	if err != nil {
		return SendTransactionResponse{}, err
	}
	return SendTransactionResponse{Task: task, Account: h.Address, SafeTxHash: signed.Hash}, nil
}

func (b *Backend) TaskStatus(ctx context.Context, taskID string) (relay.Task, error) {
	return b.submitter.PollID(ctx, taskID)
}

// WaitTask polls until the task is terminal. The caller's context bounds it.
func (b *Backend) WaitTask(ctx context.Context, taskID string) (relay.Task, error) {
	task, err := b.submitter.PollID(ctx, taskID)
	if err != nil && !safe.IsRetriable(err) {
		return task, err
	}
	if task.Status.Terminal() {
		return task, nil
	}
	return b.submitter.Wait(ctx, task, b.pollInterval)
}

func outcome(err error) string {
	if errors.Is(err, safe.ErrSigningAbandoned) {
		return "abandoned"
	}
	if k := safe.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}
