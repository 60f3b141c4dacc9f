package safe

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OwnerConfig is the owner set and signing threshold of an account.
type OwnerConfig struct {
	Owners    []common.Address `json:"owners"`
	Threshold uint64           `json:"threshold"`
}

// NewOwnerConfig copies owners and validates the result.
func NewOwnerConfig(owners []common.Address, threshold uint64) (OwnerConfig, error) {
	cfg := OwnerConfig{
		Owners:    append([]common.Address(nil), owners...),
		Threshold: threshold,
	}
	if err := cfg.Validate(); err != nil {
		return OwnerConfig{}, err
	}
	return cfg, nil
}

func (c OwnerConfig) Validate() error {
	if len(c.Owners) == 0 {
		return NewError(KindConfiguration, "owner config", ErrNoOwners)
	}
	seen := make(map[common.Address]struct{}, len(c.Owners))
	for _, owner := range c.Owners {
		if owner == (common.Address{}) {
			return NewError(KindConfiguration, "owner config", ErrZeroOwner)
		}
		if _, ok := seen[owner]; ok {
			return NewError(KindConfiguration, "owner config", fmt.Errorf("%w: %s", ErrDuplicateOwner, owner))
		}
		seen[owner] = struct{}{}
	}
	if c.Threshold < 1 || c.Threshold > uint64(len(c.Owners)) {
		return NewError(KindConfiguration, "owner config",
			fmt.Errorf("%w: %d of %d owners", ErrThresholdRange, c.Threshold, len(c.Owners)))
	}
	return nil
}

func (c OwnerConfig) IsOwner(addr common.Address) bool {
	for _, owner := range c.Owners {
		if owner == addr {
			return true
		}
	}
	return false
}

// Salt is the per-account random value mixed into address derivation.
// It is used as the uint256 saltNonce of the proxy factory.
type Salt [32]byte

func NewSalt() (Salt, error) {
	var s Salt
	if _, err := rand.Read(s[:]); err != nil {
		return Salt{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return s, nil
}

// ParseSalt accepts a 0x-prefixed hex string of at most 32 bytes.
func ParseSalt(s string) (Salt, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Salt{}, NewError(KindConfiguration, "parse salt", err)
	}
	if len(b) > len(Salt{}) {
		return Salt{}, NewError(KindConfiguration, "parse salt", fmt.Errorf("salt is %d bytes", len(b)))
	}
	var out Salt
	copy(out[len(out)-len(b):], b)
	return out, nil
}

func (s Salt) Big() *big.Int { return new(big.Int).SetBytes(s[:]) }

func (s Salt) Hex() string { return hexutil.Encode(s[:]) }

func (s Salt) String() string { return s.Hex() }

func (s Salt) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }

func (s *Salt) UnmarshalText(input []byte) error {
	v, err := ParseSalt(string(input))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
