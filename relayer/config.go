package relayer

import (
	"errors"
	"fmt"
	"time"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/retry"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/jinmel/safe-relay/flags"
	"github.com/jinmel/safe-relay/relay"
)

var ErrConflictingKeys = errors.New("owner-private-key and owner-keystore are mutually exclusive")

type CLIConfig struct {
	RPCURL  string `validate:"required,url"`
	ChainID uint64

	RelayAPIKey    string
	TxServiceURL   string        `validate:"omitempty,url"`
	RelayURL       string        `validate:"required,url"`
	RelayStatusURL string        `validate:"omitempty,url"`
	RelayTimeout   time.Duration `validate:"gt=0"`

	DeploymentsFile string
	DataDir         string `validate:"required"`

	OwnerPrivateKey string
	OwnerKeystore   string
	OwnerPassword   string
	KnownAccounts   []string `validate:"dive,eth_addr"`
	FeeCollector    string   `validate:"omitempty,eth_addr"`

	SubmitAttempts int           `validate:"min=1,max=20"`
	SubmitBackoff  time.Duration `validate:"min=0"`
	PollInterval   time.Duration `validate:"gt=0"`

	RPC           oprpc.CLIConfig
	LogConfig     oplog.CLIConfig
	MetricsConfig opmetrics.CLIConfig
}

func validEthAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("eth_addr", validEthAddress); err != nil {
		return nil, fmt.Errorf("failed to register validator for eth_addr: %w", err)
	}
	return v, nil
}

func (c *CLIConfig) Check() error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	var result *multierror.Error
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("invalid %s: failed %q check", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}
	if c.OwnerPrivateKey != "" && c.OwnerKeystore != "" {
		result = multierror.Append(result, ErrConflictingKeys)
	}
	if err := c.RPC.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.MetricsConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (c *CLIConfig) KnownAccountAddresses() []common.Address {
	out := make([]common.Address, len(c.KnownAccounts))
	for i, a := range c.KnownAccounts {
		out[i] = common.HexToAddress(a)
	}
	return out
}

func (c *CLIConfig) FeeCollectorAddress() common.Address {
	return common.HexToAddress(c.FeeCollector)
}

func (c *CLIConfig) RetryPolicy() relay.RetryPolicy {
	policy := relay.RetryPolicy{MaxAttempts: c.SubmitAttempts, Strategy: retry.Exponential()}
	if c.SubmitBackoff > 0 {
		policy.Strategy = retry.Fixed(c.SubmitBackoff)
	}
	return policy
}

func NewConfig(ctx *cli.Context) *CLIConfig {
	return &CLIConfig{
		RPCURL:  ctx.String(flags.RPCURLFlag.Name),
		ChainID: ctx.Uint64(flags.ChainIDFlag.Name),

		TxServiceURL:   ctx.String(flags.TxServiceURLFlag.Name),
		RelayURL:       ctx.String(flags.RelayURLFlag.Name),
		RelayAPIKey:    ctx.String(flags.RelayAPIKeyFlag.Name),
		RelayStatusURL: ctx.String(flags.RelayStatusURLFlag.Name),
		RelayTimeout:   ctx.Duration(flags.RelayTimeoutFlag.Name),

		DeploymentsFile: ctx.String(flags.DeploymentsFileFlag.Name),
		DataDir:         ctx.String(flags.DataDirFlag.Name),

		OwnerPrivateKey: ctx.String(flags.OwnerPrivateKeyFlag.Name),
		OwnerKeystore:   ctx.String(flags.OwnerKeystoreFlag.Name),
		OwnerPassword:   ctx.String(flags.OwnerPasswordFlag.Name),
		KnownAccounts:   ctx.StringSlice(flags.KnownAccountsFlag.Name),
		FeeCollector:    ctx.String(flags.FeeCollectorFlag.Name),

		SubmitAttempts: ctx.Int(flags.SubmitAttemptsFlag.Name),
		SubmitBackoff:  ctx.Duration(flags.SubmitBackoffFlag.Name),
		PollInterval:   ctx.Duration(flags.PollIntervalFlag.Name),

		RPC:           oprpc.ReadCLIConfig(ctx),
		LogConfig:     oplog.ReadCLIConfig(ctx),
		MetricsConfig: opmetrics.ReadCLIConfig(ctx),
	}
}
