package safe

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type stubIndex struct {
	accounts map[common.Address][]common.Address
	err      error
}

func (s *stubIndex) AccountsByOwner(ctx context.Context, owner common.Address) ([]common.Address, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.accounts[owner], nil
}

type stubCode map[common.Address][]byte

func (s stubCode) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return s[account], nil
}

func TestResolveNoAccountsDoesNotPredict(t *testing.T) {
	r := NewAccountResolver(&stubIndex{}, testPredictor(t), stubCode{})
	accounts, err := r.Resolve(context.Background(), ownerA)
	require.NoError(t, err)
	require.True(t, accounts.Empty())
	require.NotNil(t, accounts)
}

func TestResolveExistingAccounts(t *testing.T) {
	safe1 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	safe2 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	index := &stubIndex{accounts: map[common.Address][]common.Address{
		ownerA: {safe2, safe1, safe2},
	}}
	r := NewAccountResolver(index, testPredictor(t), stubCode{})

	accounts, err := r.Resolve(context.Background(), ownerA)
	require.NoError(t, err)
	require.Equal(t, []common.Address{safe2, safe1}, accounts.Addresses())
	for _, h := range accounts {
		require.True(t, h.Deployed)
		require.Nil(t, h.Salt)
		require.Equal(t, uint64(5), h.ChainID)
	}

	selected, err := accounts.Select(safe1)
	require.NoError(t, err)
	require.Equal(t, safe1, selected.Address)
	_, err = accounts.Select(ownerB)
	require.ErrorIs(t, err, ErrAccountNotSelected)
}

func TestResolveIndexFailure(t *testing.T) {
	r := NewAccountResolver(&stubIndex{err: errors.New("timeout")}, testPredictor(t), stubCode{})
	_, err := r.Resolve(context.Background(), ownerA)
	require.ErrorIs(t, err, ErrNetworkRead)
	require.True(t, IsRetriable(err))
}

func TestPredictHandle(t *testing.T) {
	p := testPredictor(t)
	r := NewAccountResolver(&stubIndex{}, p, stubCode{})
	cfg := OwnerConfig{Owners: []common.Address{ownerA}, Threshold: 1}

	h, err := r.Predict(cfg, saltOf(1))
	require.NoError(t, err)
	want, err := p.Predict(cfg, saltOf(1))
	require.NoError(t, err)
	require.Equal(t, want, h.Address)
	require.False(t, h.Deployed)
	require.NotNil(t, h.Salt)
	require.Equal(t, saltOf(1), *h.Salt)

	cfg.Owners[0] = ownerB
	require.Equal(t, ownerA, h.Owners.Owners[0])
}

func TestConfirmDeployment(t *testing.T) {
	p := testPredictor(t)
	code := stubCode{}
	r := NewAccountResolver(&stubIndex{}, p, code)
	h, err := r.Predict(OwnerConfig{Owners: []common.Address{ownerA}, Threshold: 1}, saltOf(1))
	require.NoError(t, err)

	same, ok, err := r.ConfirmDeployment(context.Background(), h)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, same.Deployed)
	require.NotNil(t, same.Salt)

	code[h.Address] = []byte{0x60, 0x80}
	deployed, ok, err := r.ConfirmDeployment(context.Background(), h)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, deployed.Deployed)
	require.Nil(t, deployed.Salt)
	require.False(t, h.Deployed, "input handle is a value and stays predicted")
}
