package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/jinmel/safe-relay/safe"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrNoKey       = errors.New("no owner key configured")
)

// Session is the result of a sign-in: the owner address and any accounts
// the identity already knows about.
type Session struct {
	Owner         common.Address   `json:"owner"`
	KnownAccounts []common.Address `json:"knownAccounts"`
}

// Provider authenticates the owner and hands out its signing key.
type Provider interface {
	SignIn(ctx context.Context) (Session, error)
	Signer(ctx context.Context) (safe.KeyHolder, error)
}

// LocalKey signs with an in-process secp256k1 key.
type LocalKey struct {
	priv *ecdsa.PrivateKey
	addr common.Address
}

func NewLocalKey(priv *ecdsa.PrivateKey) *LocalKey {
	return &LocalKey{priv: priv, addr: crypto.PubkeyToAddress(priv.PublicKey)}
}

func (k *LocalKey) Address() common.Address { return k.addr }

func (k *LocalKey) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return crypto.Sign(hash.Bytes(), k.priv)
}

type Config struct {
	// PrivateKey is a hex encoded key. It takes precedence over Keystore.
	PrivateKey    string
	Keystore      string
	Password      string
	KnownAccounts []common.Address
}

type LocalProvider struct {
	log log.Logger
	cfg Config

	mu      sync.Mutex
	key     *LocalKey
	session *Session
}

func NewLocalProvider(log log.Logger, cfg Config) *LocalProvider {
	return &LocalProvider{log: log, cfg: cfg}
}

func (p *LocalProvider) loadKey() (*ecdsa.PrivateKey, error) {
	switch {
	case p.cfg.PrivateKey != "":
		priv, err := crypto.HexToECDSA(strings.TrimPrefix(p.cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		return priv, nil
	case p.cfg.Keystore != "":
		data, err := os.ReadFile(p.cfg.Keystore)
		if err != nil {
			return nil, fmt.Errorf("failed to read keystore: %w", err)
		}
		key, err := keystore.DecryptKey(data, p.cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	default:
		return nil, ErrNoKey
	}
}

func (p *LocalProvider) SignIn(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, safe.NewError(safe.KindAuthentication, "sign in", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return copySession(*p.session), nil
	}

	priv, err := p.loadKey()
	if err != nil {
		return Session{}, safe.NewError(safe.KindAuthentication, "sign in", err)
	}
	p.key = NewLocalKey(priv)
	known := make([]common.Address, len(p.cfg.KnownAccounts))
	copy(known, p.cfg.KnownAccounts)
	p.session = &Session{Owner: p.key.Address(), KnownAccounts: known}
	p.log.Info("Signed in", "owner", p.key.Address(), "known_accounts", len(known))
	return copySession(*p.session), nil
}

func (p *LocalProvider) Signer(ctx context.Context) (safe.KeyHolder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return nil, safe.NewError(safe.KindAuthentication, "signer", ErrNotSignedIn)
	}
	return p.key, nil
}

func copySession(s Session) Session {
	known := make([]common.Address, len(s.KnownAccounts))
	copy(known, s.KnownAccounts)
	return Session{Owner: s.Owner, KnownAccounts: known}
}
