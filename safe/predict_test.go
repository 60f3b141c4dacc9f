package safe

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

var (
	ownerA = common.HexToAddress("0x000000000000000000000000000000000000000A")
	ownerB = common.HexToAddress("0x000000000000000000000000000000000000000B")
	ownerC = common.HexToAddress("0x000000000000000000000000000000000000000C")
)

func testDeployment() Deployment {
	d := canonical(5)
	// Any constant code works for derivation tests.
	d.ProxyCreationCode = common.FromHex("0x608060405234801561001057600080fd5b50")
	return d
}

// proxyCreationCode is the GnosisSafeProxy creation code returned by the
// v1.3.0 GnosisSafeProxyFactory.
const proxyCreationCode = "0x608060405234801561001057600080fd5b506040516101e63803806101e68339818101604052602081101561003357600080fd5b8101908080519060200190929190505050600073ffffffffffffffffffffffffffffffffffffffff168173ffffffffffffffffffffffffffffffffffffffff1614156100ca576040517f08c379a00000000000000000000000000000000000000000000000000000000081526004018080602001828103825260228152602001806101c46022913960400191505060405180910390fd5b806000806101000a81548173ffffffffffffffffffffffffffffffffffffffff021916908373ffffffffffffffffffffffffffffffffffffffff1602179055505060ab806101196000396000f3fe608060405273ffffffffffffffffffffffffffffffffffffffff600054167fa619486e0000000000000000000000000000000000000000000000000000000060003514156050578060005260206000f35b3660008037600080366000845af43d6000803e60008114156070573d6000fd5b3d6000f3fea2646970667358221220d1429297349653a4918076d650332de1a1068c5f3e07c5c82360c277770b955264736f6c63430007060033496e76616c69642073696e676c65746f6e20616464726573732070726f7669646564"

func testPredictor(t *testing.T) *AddressPredictor {
	p, err := NewAddressPredictor(testDeployment())
	require.NoError(t, err)
	return p
}

func saltOf(b byte) Salt {
	var s Salt
	s[31] = b
	return s
}

func TestPredictDeterministic(t *testing.T) {
	p := testPredictor(t)
	cfg, err := NewOwnerConfig([]common.Address{ownerA}, 1)
	require.NoError(t, err)

	first, err := p.Predict(cfg, saltOf(1))
	require.NoError(t, err)
	second, err := p.Predict(cfg, saltOf(1))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotEqual(t, common.Address{}, first)
}

func TestPredictKnownAddresses(t *testing.T) {
	d := canonical(5)
	d.ProxyCreationCode = common.FromHex(proxyCreationCode)
	p, err := NewAddressPredictor(d)
	require.NoError(t, err)

	owner1 := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	owner2 := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	tests := []struct {
		name      string
		owners    []common.Address
		threshold uint64
		salt      Salt
		want      common.Address
	}{
		{"single owner", []common.Address{owner1}, 1, saltOf(0), common.HexToAddress("0x58E10F1c8c90495E5518959845dC514fccA63BAc")},
		{"single owner salted", []common.Address{owner1}, 1, saltOf(1), common.HexToAddress("0xc94b942A1D6EF1CF0c37C27775B8b081684c0EA5")},
		{"two of two", []common.Address{owner1, owner2}, 2, saltOf(0), common.HexToAddress("0xeCC4E4505b90841B19468C77009C822a3484c69F")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewOwnerConfig(tt.owners, tt.threshold)
			require.NoError(t, err)
			initializer, err := p.Initializer(cfg)
			require.NoError(t, err)
			require.Equal(t, "0xb63e800d", hexutil.Encode(initializer[:4]))

			got, err := p.Predict(cfg, tt.salt)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPredictVariesWithSalt(t *testing.T) {
	p := testPredictor(t)
	cfg, err := NewOwnerConfig([]common.Address{ownerA}, 1)
	require.NoError(t, err)

	seen := make(map[common.Address]struct{})
	for i := byte(0); i < 16; i++ {
		addr, err := p.Predict(cfg, saltOf(i))
		require.NoError(t, err)
		seen[addr] = struct{}{}
	}
	require.Len(t, seen, 16)
}

func TestPredictVariesWithOwners(t *testing.T) {
	p := testPredictor(t)
	one, err := p.Predict(OwnerConfig{Owners: []common.Address{ownerA}, Threshold: 1}, saltOf(1))
	require.NoError(t, err)
	two, err := p.Predict(OwnerConfig{Owners: []common.Address{ownerA, ownerB}, Threshold: 1}, saltOf(1))
	require.NoError(t, err)
	three, err := p.Predict(OwnerConfig{Owners: []common.Address{ownerA, ownerB}, Threshold: 2}, saltOf(1))
	require.NoError(t, err)
	require.NotEqual(t, one, two)
	require.NotEqual(t, two, three)
}

func TestPredictRejectsBadConfig(t *testing.T) {
	p := testPredictor(t)
	tests := []struct {
		name string
		cfg  OwnerConfig
		want error
	}{
		{"no owners", OwnerConfig{Threshold: 1}, ErrNoOwners},
		{"zero threshold", OwnerConfig{Owners: []common.Address{ownerA}}, ErrThresholdRange},
		{"threshold above owners", OwnerConfig{Owners: []common.Address{ownerA}, Threshold: 2}, ErrThresholdRange},
		{"duplicate owner", OwnerConfig{Owners: []common.Address{ownerA, ownerA}, Threshold: 1}, ErrDuplicateOwner},
		{"zero owner", OwnerConfig{Owners: []common.Address{{}}, Threshold: 1}, ErrZeroOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Predict(tt.cfg, saltOf(1))
			require.ErrorIs(t, err, ErrConfiguration)
			require.ErrorIs(t, err, tt.want)
			require.False(t, IsRetriable(err))
		})
	}
}

func TestPredictRequiresCreationCode(t *testing.T) {
	d := testDeployment()
	d.ProxyCreationCode = nil
	p, err := NewAddressPredictor(d)
	require.NoError(t, err)
	_, err = p.Predict(OwnerConfig{Owners: []common.Address{ownerA}, Threshold: 1}, saltOf(1))
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorIs(t, err, ErrIncompleteDeploy)
}

func TestDeploymentCall(t *testing.T) {
	p := testPredictor(t)
	cfg := OwnerConfig{Owners: []common.Address{ownerA}, Threshold: 1}
	call, err := p.DeploymentCall(cfg, saltOf(7))
	require.NoError(t, err)
	require.Equal(t, p.Deployment().ProxyFactory, call.To)
	require.Zero(t, call.Value.Sign())

	method := ProxyFactoryABI.Methods["createProxyWithNonce"]
	require.Equal(t, method.ID, []byte(call.Data[:4]))
	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)
	require.Equal(t, p.Deployment().Singleton, args[0])
	initializer, err := p.Initializer(cfg)
	require.NoError(t, err)
	require.Equal(t, initializer, args[1])
	require.Zero(t, saltOf(7).Big().Cmp(args[2].(*big.Int)))
}

func TestSaltParse(t *testing.T) {
	s, err := NewSalt()
	require.NoError(t, err)
	parsed, err := ParseSalt(s.Hex())
	require.NoError(t, err)
	require.Equal(t, s, parsed)

	short, err := ParseSalt("0x01")
	require.NoError(t, err)
	require.Equal(t, saltOf(1), short)

	_, err = ParseSalt("0x" + common.Bytes2Hex(make([]byte, 33)))
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = ParseSalt("zz")
	require.ErrorIs(t, err, ErrConfiguration)
}
