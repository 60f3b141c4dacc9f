package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum-optimism/optimism/op-service/opio"
	"github.com/ethereum/go-ethereum/log"

	"github.com/jinmel/safe-relay/flags"
	"github.com/jinmel/safe-relay/relayer"
)

var (
	Version   = "v0.0.1"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	oplog.SetupDefaults()

	app := cli.NewApp()
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Version = opservice.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "safe-relay"
	app.Usage = "Smart account relayer"
	app.Description = "Predicts smart account addresses and relays owner-signed transactions through a gasless relay"
	app.Action = cliapp.LifecycleCmd(relayer.Main(Version))
	app.Commands = []*cli.Command{
		{
			Name:   "predict",
			Usage:  "Predict the address of a new account and remember it until deployment",
			Flags:  []cli.Flag{flags.OwnerFlag, flags.ThresholdFlag, flags.SaltFlag},
			Action: PredictCmd,
		},
		{
			Name:   "accounts",
			Usage:  "List the signing owner's deployed and predicted accounts",
			Action: AccountsCmd,
		},
		{
			Name:  "send",
			Usage: "Sign and relay calls from an account",
			Flags: []cli.Flag{
				flags.AccountFlag,
				flags.CallFlag,
				flags.SponsoredFlag,
				flags.GasLimitFlag,
				flags.FeeTokenFlag,
				flags.WaitFlag,
			},
			Action: SendCmd,
		},
		{
			Name:   "status",
			Usage:  "Show the status of a relay task",
			Flags:  []cli.Flag{flags.TaskFlag, flags.WaitFlag},
			Action: StatusCmd,
		},
	}

	ctx := opio.WithInterruptBlocker(context.Background())
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}
