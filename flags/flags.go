package flags

import (
	"time"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
	"github.com/urfave/cli/v2"

	"github.com/jinmel/safe-relay/sources"
)

const EnvVarPrefix = "SAFE_RELAY"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	RPCURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "HTTP or WS endpoint of the chain the accounts live on",
		EnvVars: prefixEnvVars("RPC_URL"),
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "Chain id of rpc-url. Read from the endpoint when unset",
		EnvVars: prefixEnvVars("CHAIN_ID"),
	}
	TxServiceURLFlag = &cli.StringFlag{
		Name:    "tx-service-url",
		Usage:   "Transaction service used to look up an owner's accounts",
		EnvVars: prefixEnvVars("TX_SERVICE_URL"),
	}
	RelayURLFlag = &cli.StringFlag{
		Name:    "relay-url",
		Usage:   "Relay API endpoint",
		Value:   sources.DefaultRelayEndpoint,
		EnvVars: prefixEnvVars("RELAY_URL"),
	}
	RelayAPIKeyFlag = &cli.StringFlag{
		Name:    "relay-api-key",
		Usage:   "Sponsor API key for sponsored relay calls",
		EnvVars: prefixEnvVars("RELAY_API_KEY"),
	}
	RelayStatusURLFlag = &cli.StringFlag{
		Name:    "relay-status-url",
		Usage:   "Base of the task status links handed out for submitted tasks",
		Value:   sources.DefaultRelayStatusBase,
		EnvVars: prefixEnvVars("RELAY_STATUS_URL"),
	}
	RelayTimeoutFlag = &cli.DurationFlag{
		Name:    "relay-timeout",
		Usage:   "Timeout of a single relay request",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVars("RELAY_TIMEOUT"),
	}
	DeploymentsFileFlag = &cli.StringFlag{
		Name:    "deployments-file",
		Usage:   "TOML file with [[deployment]] tables overriding the canonical contract addresses",
		EnvVars: prefixEnvVars("DEPLOYMENTS_FILE"),
	}
	DataDirFlag = &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "Directory for predicted account handles. Salts are kept here until the account is deployed",
		Value:   "safe-relay-data",
		EnvVars: prefixEnvVars("DATA_DIR"),
	}
	OwnerPrivateKeyFlag = &cli.StringFlag{
		Name:    "owner-private-key",
		Usage:   "Hex encoded private key of the signing owner",
		EnvVars: prefixEnvVars("OWNER_PRIVATE_KEY"),
	}
	OwnerKeystoreFlag = &cli.StringFlag{
		Name:    "owner-keystore",
		Usage:   "Encrypted keystore file of the signing owner",
		EnvVars: prefixEnvVars("OWNER_KEYSTORE"),
	}
	OwnerPasswordFlag = &cli.StringFlag{
		Name:    "owner-password",
		Usage:   "Password of owner-keystore",
		EnvVars: prefixEnvVars("OWNER_PASSWORD"),
	}
	KnownAccountsFlag = &cli.StringSliceFlag{
		Name:    "known-account",
		Usage:   "Account already associated with the owner. Skips the transaction service lookup",
		EnvVars: prefixEnvVars("KNOWN_ACCOUNTS"),
	}
	FeeCollectorFlag = &cli.StringFlag{
		Name:    "fee-collector",
		Usage:   "Relay fee collector paid by unsponsored requests",
		EnvVars: prefixEnvVars("FEE_COLLECTOR"),
	}
	SubmitAttemptsFlag = &cli.IntFlag{
		Name:    "submit-attempts",
		Usage:   "Attempts per relay submission while the relay is unavailable",
		Value:   3,
		EnvVars: prefixEnvVars("SUBMIT_ATTEMPTS"),
	}
	SubmitBackoffFlag = &cli.DurationFlag{
		Name:    "submit-backoff",
		Usage:   "Fixed wait between submission attempts. Exponential backoff when unset",
		EnvVars: prefixEnvVars("SUBMIT_BACKOFF"),
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:    "poll-interval",
		Usage:   "Interval between task status polls while waiting",
		Value:   2 * time.Second,
		EnvVars: prefixEnvVars("POLL_INTERVAL"),
	}
)

// Command flags.
var (
	OwnerFlag = &cli.StringSliceFlag{
		Name:  "owner",
		Usage: "Owner of the predicted account. Defaults to the signing owner",
	}
	ThresholdFlag = &cli.Uint64Flag{
		Name:  "threshold",
		Usage: "Signatures required by the predicted account",
		Value: 1,
	}
	SaltFlag = &cli.StringFlag{
		Name:  "salt",
		Usage: "Hex salt of the predicted account. Random when unset",
	}
	AccountFlag = &cli.StringFlag{
		Name:     "account",
		Usage:    "Account to send from",
		Required: true,
	}
	CallFlag = &cli.StringSliceFlag{
		Name:     "call",
		Usage:    "Call as to[,value[,data]]. Repeat for a batch",
		Required: true,
	}
	SponsoredFlag = &cli.BoolFlag{
		Name:  "sponsored",
		Usage: "Use the sponsor API key instead of paying the relay from the account",
		Value: true,
	}
	GasLimitFlag = &cli.Uint64Flag{
		Name:  "gas-limit",
		Usage: "Gas limit passed to the relay",
	}
	FeeTokenFlag = &cli.StringFlag{
		Name:  "fee-token",
		Usage: "Token an unsponsored request pays in. Native currency when unset",
	}
	TaskFlag = &cli.StringFlag{
		Name:     "task",
		Usage:    "Relay task id",
		Required: true,
	}
	WaitFlag = &cli.BoolFlag{
		Name:  "wait",
		Usage: "Poll until the task succeeds or fails",
	}
)

func init() {
	Flags = []cli.Flag{
		RPCURLFlag,
		ChainIDFlag,
		TxServiceURLFlag,
		RelayURLFlag,
		RelayAPIKeyFlag,
		RelayStatusURLFlag,
		RelayTimeoutFlag,
		DeploymentsFileFlag,
		DataDirFlag,
		OwnerPrivateKeyFlag,
		OwnerKeystoreFlag,
		OwnerPasswordFlag,
		KnownAccountsFlag,
		FeeCollectorFlag,
		SubmitAttemptsFlag,
		SubmitBackoffFlag,
		PollIntervalFlag,
	}

	Flags = append(Flags, oprpc.CLIFlags(EnvVarPrefix)...)
	Flags = append(Flags, oplog.CLIFlags(EnvVarPrefix)...)
	Flags = append(Flags, opmetrics.CLIFlags(EnvVarPrefix)...)
}

var Flags []cli.Flag
