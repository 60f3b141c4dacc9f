package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/jinmel/safe-relay/safe"
)

var errUnreachable = errors.New("relay unreachable")

type key struct{ priv *ecdsa.PrivateKey }

func (k key) Address() common.Address { return crypto.PubkeyToAddress(k.priv.PublicKey) }

func (k key) SignHash(_ context.Context, hash common.Hash) ([]byte, error) {
	return crypto.Sign(hash.Bytes(), k.priv)
}

type fixedState struct{ state safe.AccountState }

func (s fixedState) AccountState(context.Context, common.Address) (safe.AccountState, error) {
	return s.state, nil
}

type fakeService struct {
	submitErrs []error
	submits    int
	calls      []safe.RelayCall

	reports  []Report
	pollErrs []error
	polls    int
}

func (f *fakeService) Submit(_ context.Context, call safe.RelayCall) (string, error) {
	f.submits++
	f.calls = append(f.calls, call)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "T1", nil
}

func (f *fakeService) TaskStatus(context.Context, string) (Report, error) {
	f.polls++
	if len(f.pollErrs) > 0 {
		err := f.pollErrs[0]
		f.pollErrs = f.pollErrs[1:]
		if err != nil {
			return Report{}, err
		}
	}
	if len(f.reports) == 0 {
		return Report{Status: Pending}, nil
	}
	r := f.reports[0]
	if len(f.reports) > 1 {
		f.reports = f.reports[1:]
	}
	return r, nil
}

func (f *fakeService) StatusURL(id string) string { return "https://relay.example/tasks/status/" + id }

func testDeployment() safe.Deployment {
	d, _ := safe.DefaultDeployments().Get(5)
	d.ProxyCreationCode = common.FromHex("0x608060405234801561001057600080fd5b50")
	return d
}

func newSubmitter(t *testing.T, svc Service) *Submitter {
	p, err := safe.NewAddressPredictor(testDeployment())
	require.NoError(t, err)
	return NewSubmitter(testlog.Logger(t, log.LevelDebug), svc, p, nil)
}

func signedFor(t *testing.T, h safe.AccountHandle, k key) safe.SignedRelayRequest {
	req, err := safe.NewTransactionBuilder().Build(h, []safe.CallArgs{{To: "0x000000000000000000000000000000000000000B", Value: "0", Data: "0x"}})
	require.NoError(t, err)
	req, err = safe.NewRelayRequestComposer(common.Address{}).Compose(req, safe.Policy{Sponsored: true})
	require.NoError(t, err)
	state := fixedState{safe.AccountState{Owners: []common.Address{k.Address()}, Threshold: 1, Nonce: big.NewInt(0)}}
	signed, err := safe.NewAuthorizationSigner(testDeployment(), state).Sign(context.Background(), req, k)
	require.NoError(t, err)
	return signed
}

func newKey(t *testing.T) key {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key{priv}
}

func deployedSigned(t *testing.T) safe.SignedRelayRequest {
	h := safe.AccountHandle{Address: common.HexToAddress("0x1111111111111111111111111111111111111111"), ChainID: 5, Deployed: true}
	return signedFor(t, h, newKey(t))
}

func TestSubmitThenPollUntilSuccess(t *testing.T) {
	svc := &fakeService{reports: []Report{{Status: Pending}, {Status: Success, TxHash: common.HexToHash("0xabc")}}}
	s := newSubmitter(t, svc)

	task, err := s.Submit(context.Background(), deployedSigned(t))
	require.NoError(t, err)
	require.Equal(t, "T1", task.ID)
	require.Equal(t, Pending, task.Status)
	require.Equal(t, "https://relay.example/tasks/status/T1", task.StatusURL)

	task, err = s.Poll(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, Pending, task.Status)

	pending := task
	task, err = s.Poll(context.Background(), pending)
	require.NoError(t, err)
	require.Equal(t, Success, task.Status)
	require.Equal(t, common.HexToHash("0xabc"), task.TxHash)

	// Both the returned terminal task and a stale pending copy stay Success.
	again, err := s.Poll(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, Success, again.Status)
	stale, err := s.Poll(context.Background(), pending)
	require.NoError(t, err)
	require.Equal(t, Success, stale.Status)
	byID, err := s.PollID(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, Success, byID.Status)
	require.Equal(t, 2, svc.polls)
}

func TestPollFailedIsTerminal(t *testing.T) {
	svc := &fakeService{reports: []Report{{Status: Failed, Reason: "execution reverted"}, {Status: Pending}}}
	s := newSubmitter(t, svc)

	task, err := s.PollID(context.Background(), "T9")
	require.NoError(t, err)
	require.Equal(t, Failed, task.Status)
	require.Equal(t, "execution reverted", task.Reason)

	task, err = s.PollID(context.Background(), "T9")
	require.NoError(t, err)
	require.Equal(t, Failed, task.Status)
	require.Equal(t, 1, svc.polls)
}

func TestPollErrorKeepsTask(t *testing.T) {
	unavailable := safe.NewError(safe.KindRelayUnavailable, "task status", context.DeadlineExceeded)
	svc := &fakeService{pollErrs: []error{unavailable}}
	s := newSubmitter(t, svc)

	in := Task{ID: "T1", Status: Pending}
	out, err := s.Poll(context.Background(), in)
	require.ErrorIs(t, err, safe.ErrRelayUnavailable)
	require.Equal(t, in, out)
}

func TestPollIDRequiresID(t *testing.T) {
	s := newSubmitter(t, &fakeService{})
	_, err := s.PollID(context.Background(), "")
	require.ErrorIs(t, err, safe.ErrConfiguration)
}

func TestSubmitWithRetry(t *testing.T) {
	unavailable := safe.NewError(safe.KindRelayUnavailable, "submit", errUnreachable)
	rejected := safe.NewError(safe.KindRelayRejected, "submit", errUnreachable)
	policy := RetryPolicy{MaxAttempts: 3, Strategy: retry.Fixed(time.Millisecond)}

	t.Run("recovers", func(t *testing.T) {
		svc := &fakeService{submitErrs: []error{unavailable, unavailable}}
		task, err := newSubmitter(t, svc).SubmitWithRetry(context.Background(), deployedSigned(t), policy)
		require.NoError(t, err)
		require.Equal(t, "T1", task.ID)
		require.Equal(t, 3, svc.submits)
		// Every attempt carries the same encoded call.
		require.Equal(t, svc.calls[0], svc.calls[2])
	})

	t.Run("gives up", func(t *testing.T) {
		svc := &fakeService{submitErrs: []error{unavailable, unavailable, unavailable, nil}}
		_, err := newSubmitter(t, svc).SubmitWithRetry(context.Background(), deployedSigned(t), policy)
		require.ErrorIs(t, err, safe.ErrRelayUnavailable)
		require.Equal(t, 3, svc.submits)
	})

	t.Run("rejected is not retried", func(t *testing.T) {
		svc := &fakeService{submitErrs: []error{rejected}}
		_, err := newSubmitter(t, svc).SubmitWithRetry(context.Background(), deployedSigned(t), policy)
		require.ErrorIs(t, err, safe.ErrRelayRejected)
		require.Equal(t, 1, svc.submits)
	})

	t.Run("cancelled", func(t *testing.T) {
		svc := &fakeService{submitErrs: []error{unavailable, unavailable}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryPolicy{MaxAttempts: 3, Strategy: retry.Fixed(time.Hour)}
		_, err := newSubmitter(t, svc).SubmitWithRetry(ctx, deployedSigned(t), slow)
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, err, safe.ErrRelayUnavailable)
		require.Equal(t, 1, svc.submits)
	})
}

func TestSubmitPredictedAccountDeploysThroughMultiSend(t *testing.T) {
	k := newKey(t)
	p, err := safe.NewAddressPredictor(testDeployment())
	require.NoError(t, err)
	cfg, err := safe.NewOwnerConfig([]common.Address{k.Address()}, 1)
	require.NoError(t, err)
	var salt safe.Salt
	salt[31] = 7
	addr, err := p.Predict(cfg, salt)
	require.NoError(t, err)
	h := safe.AccountHandle{Address: addr, ChainID: 5, Owners: cfg, Salt: &salt}

	svc := &fakeService{}
	_, err = newSubmitter(t, svc).Submit(context.Background(), signedFor(t, h, k))
	require.NoError(t, err)
	require.Len(t, svc.calls, 1)
	require.Equal(t, testDeployment().MultiSendCallOnly, svc.calls[0].Target)
	require.True(t, svc.calls[0].Options.Sponsored)
}

func TestWait(t *testing.T) {
	unavailable := safe.NewError(safe.KindRelayUnavailable, "task status", errUnreachable)
	svc := &fakeService{
		pollErrs: []error{nil, unavailable},
		reports:  []Report{{Status: Pending}, {Status: Success}},
	}
	s := newSubmitter(t, svc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	task, err := s.Wait(ctx, Task{ID: "T1", Status: Pending}, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, Success, task.Status)
	require.Equal(t, 3, svc.polls)
}

func TestWaitStopsOnDeadline(t *testing.T) {
	s := newSubmitter(t, &fakeService{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	task, err := s.Wait(ctx, Task{ID: "T1", Status: Pending}, 5*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, Pending, task.Status)
}

func TestWaitRequiresInterval(t *testing.T) {
	svc := &fakeService{}
	s := newSubmitter(t, svc)
	for _, interval := range []time.Duration{0, -time.Second} {
		task, err := s.Wait(context.Background(), Task{ID: "T1", Status: Pending}, interval)
		require.ErrorIs(t, err, safe.ErrConfiguration)
		require.Equal(t, Pending, task.Status)
	}
	require.Zero(t, svc.polls)
}
