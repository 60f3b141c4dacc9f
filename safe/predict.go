package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPredictor derives account addresses the way the proxy factory's
// createProxyWithNonce does, without touching the chain.
type AddressPredictor struct {
	deployment Deployment
}

func NewAddressPredictor(d Deployment) (*AddressPredictor, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	return &AddressPredictor{deployment: d}, nil
}

func (p *AddressPredictor) Deployment() Deployment { return p.deployment }

// Initializer is the setup call the new proxy runs on creation.
func (p *AddressPredictor) Initializer(cfg OwnerConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := SafeABI.Pack("setup",
		cfg.Owners,
		new(big.Int).SetUint64(cfg.Threshold),
		common.Address{},
		[]byte{},
		p.deployment.FallbackHandler,
		common.Address{},
		new(big.Int),
		common.Address{},
	)
	if err != nil {
		return nil, NewError(KindConfiguration, "encode initializer", err)
	}
	return data, nil
}

func (p *AddressPredictor) Predict(cfg OwnerConfig, salt Salt) (common.Address, error) {
	if len(p.deployment.ProxyCreationCode) == 0 {
		return common.Address{}, NewError(KindConfiguration, "predict",
			fmt.Errorf("%w: proxy creation code", ErrIncompleteDeploy))
	}
	initializer, err := p.Initializer(cfg)
	if err != nil {
		return common.Address{}, err
	}
	// The factory salts with keccak(keccak(initializer) ++ saltNonce).
	create2Salt := crypto.Keccak256Hash(crypto.Keccak256(initializer), salt[:])

	initCode := make([]byte, 0, len(p.deployment.ProxyCreationCode)+common.HashLength)
	initCode = append(initCode, p.deployment.ProxyCreationCode...)
	initCode = append(initCode, common.LeftPadBytes(p.deployment.Singleton.Bytes(), common.HashLength)...)

	return crypto.CreateAddress2(p.deployment.ProxyFactory, create2Salt, crypto.Keccak256(initCode)), nil
}

// DeploymentCall is the factory call that deploys the predicted account.
func (p *AddressPredictor) DeploymentCall(cfg OwnerConfig, salt Salt) (MetaTransactionData, error) {
	initializer, err := p.Initializer(cfg)
	if err != nil {
		return MetaTransactionData{}, err
	}
	data, err := ProxyFactoryABI.Pack("createProxyWithNonce", p.deployment.Singleton, initializer, salt.Big())
	if err != nil {
		return MetaTransactionData{}, NewError(KindConfiguration, "encode deployment", err)
	}
	return MetaTransactionData{
		To:    p.deployment.ProxyFactory,
		Value: new(big.Int),
		Data:  data,
	}, nil
}
