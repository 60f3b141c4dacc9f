package safe

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const DefaultVersion = "1.3.0"

// Deployment holds the static contract addresses an account is derived from
// on one chain.
type Deployment struct {
	ChainID           uint64         `toml:"chain_id" json:"chainId"`
	Version           string         `toml:"version" json:"version"`
	ProxyFactory      common.Address `toml:"proxy_factory" json:"proxyFactory"`
	Singleton         common.Address `toml:"singleton" json:"singleton"`
	FallbackHandler   common.Address `toml:"fallback_handler" json:"fallbackHandler"`
	MultiSendCallOnly common.Address `toml:"multi_send_call_only" json:"multiSendCallOnly"`
	ProxyCreationCode hexutil.Bytes  `toml:"proxy_creation_code" json:"proxyCreationCode"`
}

func (d *Deployment) ChainIDBig() *big.Int { return new(big.Int).SetUint64(d.ChainID) }

// Check verifies that every address is set. The creation code is only
// required for prediction and is checked there.
func (d *Deployment) Check() error {
	switch {
	case d.ChainID == 0:
		return NewError(KindConfiguration, "deployment", fmt.Errorf("%w: chain id", ErrIncompleteDeploy))
	case d.ProxyFactory == (common.Address{}):
		return NewError(KindConfiguration, "deployment", fmt.Errorf("%w: proxy factory", ErrIncompleteDeploy))
	case d.Singleton == (common.Address{}):
		return NewError(KindConfiguration, "deployment", fmt.Errorf("%w: singleton", ErrIncompleteDeploy))
	case d.MultiSendCallOnly == (common.Address{}):
		return NewError(KindConfiguration, "deployment", fmt.Errorf("%w: multisend", ErrIncompleteDeploy))
	}
	return nil
}

// LoadProxyCreationCode reads the proxy creation code from the factory when
// the config does not carry it. The code is constant for a factory, so this
// is a static lookup rather than a state read.
func (d *Deployment) LoadProxyCreationCode(ctx context.Context, caller bind.ContractCaller) error {
	if len(d.ProxyCreationCode) > 0 {
		return nil
	}
	input, err := ProxyFactoryABI.Pack("proxyCreationCode")
	if err != nil {
		return err
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &d.ProxyFactory, Data: input}, nil)
	if err != nil {
		return NewError(KindNetworkRead, "proxy creation code", err)
	}
	values, err := ProxyFactoryABI.Unpack("proxyCreationCode", out)
	if err != nil {
		return NewError(KindNetworkRead, "proxy creation code", err)
	}
	code, ok := values[0].([]byte)
	if !ok || len(code) == 0 {
		return NewError(KindConfiguration, "proxy creation code", fmt.Errorf("%w: factory %s returned no code", ErrIncompleteDeploy, d.ProxyFactory))
	}
	d.ProxyCreationCode = code
	return nil
}

// Deployments indexes deployments by chain id.
type Deployments map[uint64]Deployment

func (ds Deployments) Get(chainID uint64) (Deployment, error) {
	d, ok := ds[chainID]
	if !ok {
		return Deployment{}, NewError(KindConfiguration, "deployment", fmt.Errorf("no deployment for chain %d", chainID))
	}
	return d, nil
}

func canonical(chainID uint64) Deployment {
	return Deployment{
		ChainID:           chainID,
		Version:           DefaultVersion,
		ProxyFactory:      common.HexToAddress("0xa6B71E26C5e0845f74c812102Ca7114b6a896AB2"),
		Singleton:         common.HexToAddress("0x3E5c63644E683549055b9Be8653de26E0B4CD36E"),
		FallbackHandler:   common.HexToAddress("0xf48f2B2d2a534e402487b3ee7C18c33Aec0Fe5e4"),
		MultiSendCallOnly: common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"),
	}
}

// DefaultDeployments returns the canonical v1.3.0 L2 addresses on the chains
// where they are deployed.
func DefaultDeployments() Deployments {
	ds := make(Deployments)
	for _, id := range []uint64{1, 5, 100, 137, 80001, 11155111} {
		ds[id] = canonical(id)
	}
	return ds
}

type deploymentsFile struct {
	Deployment []Deployment `toml:"deployment"`
}

// LoadDeployments reads a TOML file of [[deployment]] tables and overlays it
// on the defaults.
func LoadDeployments(path string) (Deployments, error) {
	ds := DefaultDeployments()
	if path == "" {
		return ds, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployments file: %w", err)
	}
	return ParseDeployments(string(data), ds)
}

func ParseDeployments(data string, base Deployments) (Deployments, error) {
	var file deploymentsFile
	if _, err := toml.Decode(data, &file); err != nil {
		return nil, NewError(KindConfiguration, "deployments", err)
	}
	out := make(Deployments, len(base)+len(file.Deployment))
	for id, d := range base {
		out[id] = d
	}
	for _, d := range file.Deployment {
		if d.Version == "" {
			d.Version = DefaultVersion
		}
		if err := d.Check(); err != nil {
			return nil, err
		}
		out[d.ChainID] = d
	}
	return out, nil
}
