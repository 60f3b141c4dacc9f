package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/jinmel/safe-relay/flags"
	"github.com/jinmel/safe-relay/metrics"
	"github.com/jinmel/safe-relay/relayer"
	"github.com/jinmel/safe-relay/safe"
)

// withBackend runs fn against a backend built from the global flags and
// prints its result as JSON.
func withBackend(cliCtx *cli.Context, fn func(ctx context.Context, b *relayer.Backend) (any, error)) error {
	cfg := relayer.NewConfig(cliCtx)
	if err := cfg.Check(); err != nil {
		return fmt.Errorf("invalid CLI flags: %w", err)
	}
	l := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
	oplog.SetGlobalLogHandler(l.Handler())

	ctx := cliCtx.Context
	backend, client, handles, err := relayer.NewBackendFromConfig(ctx, l, cfg, metrics.NoopMetrics)
	if client != nil {
		defer client.Close()
	}
	if handles != nil {
		defer func() {
			if err := handles.Close(); err != nil {
				l.Error("Failed to close handle store", "err", err)
			}
		}()
	}
	if err != nil {
		return err
	}

	out, err := fn(ctx, backend)
	if err != nil {
		return err
	}
	return printJSON(cliCtx.App.Writer, out)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func PredictCmd(cliCtx *cli.Context) error {
	args := relayer.PredictAccountArgs{Threshold: hexutil.Uint64(cliCtx.Uint64(flags.ThresholdFlag.Name))}
	for _, o := range cliCtx.StringSlice(flags.OwnerFlag.Name) {
		if !common.IsHexAddress(o) {
			return fmt.Errorf("invalid owner %q", o)
		}
		args.Owners = append(args.Owners, common.HexToAddress(o))
	}
	if s := cliCtx.String(flags.SaltFlag.Name); s != "" {
		salt, err := safe.ParseSalt(s)
		if err != nil {
			return err
		}
		args.Salt = &salt
	}
	return withBackend(cliCtx, func(ctx context.Context, b *relayer.Backend) (any, error) {
		return b.PredictAccount(ctx, args)
	})
}

func AccountsCmd(cliCtx *cli.Context) error {
	return withBackend(cliCtx, func(ctx context.Context, b *relayer.Backend) (any, error) {
		return b.Accounts(ctx)
	})
}

// parseCall reads a call written as to[,value[,data]].
func parseCall(s string) (safe.CallArgs, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 3 || parts[0] == "" {
		return safe.CallArgs{}, fmt.Errorf("invalid call %q, want to[,value[,data]]", s)
	}
	call := safe.CallArgs{To: parts[0], Value: "0", Data: "0x"}
	if len(parts) > 1 && parts[1] != "" {
		call.Value = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		call.Data = parts[2]
	}
	return call, nil
}

func SendCmd(cliCtx *cli.Context) error {
	account := cliCtx.String(flags.AccountFlag.Name)
	if !common.IsHexAddress(account) {
		return fmt.Errorf("invalid account %q", account)
	}
	args := relayer.SendTransactionArgs{
		Account:   common.HexToAddress(account),
		Sponsored: cliCtx.Bool(flags.SponsoredFlag.Name),
	}
	for _, c := range cliCtx.StringSlice(flags.CallFlag.Name) {
		call, err := parseCall(c)
		if err != nil {
			return err
		}
		args.Calls = append(args.Calls, call)
	}
	if cliCtx.IsSet(flags.GasLimitFlag.Name) {
		gl := hexutil.Uint64(cliCtx.Uint64(flags.GasLimitFlag.Name))
		args.GasLimit = &gl
	}
	if t := cliCtx.String(flags.FeeTokenFlag.Name); t != "" {
		if !common.IsHexAddress(t) {
			return fmt.Errorf("invalid fee token %q", t)
		}
		token := common.HexToAddress(t)
		args.FeeToken = &token
	}
	wait := cliCtx.Bool(flags.WaitFlag.Name)

	return withBackend(cliCtx, func(ctx context.Context, b *relayer.Backend) (any, error) {
		res, err := b.SendTransaction(ctx, args)
		if err != nil || !wait {
			return res, err
		}
		log.Info("Waiting for relay task", "task", res.Task.ID, "status_url", res.Task.StatusURL)
		res.Task, err = b.WaitTask(ctx, res.Task.ID)
		return res, err
	})
}

func StatusCmd(cliCtx *cli.Context) error {
	id := cliCtx.String(flags.TaskFlag.Name)
	if id == "" {
		return errors.New("task id is required")
	}
	wait := cliCtx.Bool(flags.WaitFlag.Name)
	return withBackend(cliCtx, func(ctx context.Context, b *relayer.Backend) (any, error) {
		if wait {
			return b.WaitTask(ctx, id)
		}
		return b.TaskStatus(ctx, id)
	})
}
