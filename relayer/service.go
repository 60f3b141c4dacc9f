package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/dial"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/jinmel/safe-relay/identity"
	"github.com/jinmel/safe-relay/metrics"
	"github.com/jinmel/safe-relay/safe"
	"github.com/jinmel/safe-relay/sources"
	"github.com/jinmel/safe-relay/store"
)

// Main is the entrypoint into the relayer service.
func Main(version string) cliapp.LifecycleAction {
	return func(cliCtx *cli.Context, _ context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		cfg := NewConfig(cliCtx)
		if err := cfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid CLI flags: %w", err)
		}

		l := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
		oplog.SetGlobalLogHandler(l.Handler())

		l.Info("Initializing safe relayer")
		return NewRelayerService(cliCtx.Context, version, cfg, l)
	}
}

type RelayerService struct {
	Log     log.Logger
	Metrics *metrics.Metrics
	Backend *Backend

	Version string

	client     *ethclient.Client
	handles    *store.HandleStore
	rpcServer  *oprpc.Server
	metricsSrv *httputil.HTTPServer

	stopped atomic.Bool
}

func NewRelayerService(ctx context.Context, version string, cfg *CLIConfig, log log.Logger) (*RelayerService, error) {
	var rs RelayerService
	if err := rs.initFromCLIConfig(ctx, version, cfg, log); err != nil {
		return nil, errors.Join(err, rs.Stop(ctx))
	}
	return &rs, nil
}

func (rs *RelayerService) initFromCLIConfig(ctx context.Context, version string, cfg *CLIConfig, log log.Logger) error {
	rs.Version = version
	rs.Log = log

	rs.Metrics = metrics.NewMetrics("default")
	rs.Metrics.RecordInfo(version)

	if err := rs.initBackend(ctx, cfg); err != nil {
		return fmt.Errorf("failed to init backend: %w", err)
	}
	if err := rs.initMetricsServer(cfg); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	if err := rs.initRPCServer(cfg); err != nil {
		return fmt.Errorf("failed to start RPC server: %w", err)
	}
	return nil
}

func (rs *RelayerService) initBackend(ctx context.Context, cfg *CLIConfig) error {
	backend, client, handles, err := NewBackendFromConfig(ctx, rs.Log, cfg, rs.Metrics)
	rs.client = client
	rs.handles = handles
	if err != nil {
		return err
	}
	rs.Backend = backend
	return nil
}

// NewBackendFromConfig dials the chain, resolves the deployment and opens the
// handle store. The client and store are returned for the caller to close,
// also when an error is returned after they were opened.
func NewBackendFromConfig(ctx context.Context, l log.Logger, cfg *CLIConfig, m Metricer) (*Backend, *ethclient.Client, *store.HandleStore, error) {
	client, err := dial.DialEthClientWithTimeout(ctx, dial.DefaultDialTimeout, l, cfg.RPCURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to dial chain RPC: %w", err)
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, client, nil, fmt.Errorf("failed to read chain id: %w", err)
		}
		chainID = id.Uint64()
	}

	deployments, err := safe.LoadDeployments(cfg.DeploymentsFile)
	if err != nil {
		return nil, client, nil, err
	}
	deployment, err := deployments.Get(chainID)
	if err != nil {
		return nil, client, nil, err
	}
	if err := deployment.LoadProxyCreationCode(ctx, client); err != nil {
		return nil, client, nil, fmt.Errorf("failed to load proxy creation code: %w", err)
	}
	l.Info("Using deployment", "chain", chainID, "factory", deployment.ProxyFactory, "singleton", deployment.Singleton)

	handles, err := store.Open(l, cfg.DataDir)
	if err != nil {
		return nil, client, nil, err
	}

	relayCfg := sources.RelayAPIDefaultConfig()
	relayCfg.Endpoint = cfg.RelayURL
	relayCfg.APIKey = cfg.RelayAPIKey
	relayCfg.Timeout = cfg.RelayTimeout
	if cfg.RelayStatusURL != "" {
		relayCfg.StatusBase = cfg.RelayStatusURL
	}
	reader := sources.NewSafeReader(l, client)

	backend, err := NewBackend(l, BackendConfig{
		Deployment:   deployment,
		FeeCollector: cfg.FeeCollectorAddress(),
		Retry:        cfg.RetryPolicy(),
		PollInterval: cfg.PollInterval,
	}, Collaborators{
		Identity: identity.NewLocalProvider(l, identity.Config{
			PrivateKey:    cfg.OwnerPrivateKey,
			Keystore:      cfg.OwnerKeystore,
			Password:      cfg.OwnerPassword,
			KnownAccounts: cfg.KnownAccountAddresses(),
		}),
		Index:   sources.NewTxServiceClient(l, &sources.TxServiceConfig{Endpoint: cfg.TxServiceURL}),
		Code:    reader,
		State:   reader,
		Relay:   sources.NewRelayAPIClient(l, relayCfg),
		Handles: handles,
		Metrics: m,
	})
	if err != nil {
		return nil, client, handles, err
	}
	return backend, client, handles, nil
}

func (rs *RelayerService) initMetricsServer(cfg *CLIConfig) error {
	if !cfg.MetricsConfig.Enabled {
		rs.Log.Info("Metrics disabled")
		return nil
	}
	rs.Log.Debug("Starting metrics server", "addr", cfg.MetricsConfig.ListenAddr, "port", cfg.MetricsConfig.ListenPort)
	metricsSrv, err := opmetrics.StartServer(rs.Metrics.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	rs.Log.Info("Started metrics server", "addr", metricsSrv.Addr())
	rs.metricsSrv = metricsSrv
	return nil
}

func (rs *RelayerService) initRPCServer(cfg *CLIConfig) error {
	server := oprpc.NewServer(
		cfg.RPC.ListenAddr,
		cfg.RPC.ListenPort,
		rs.Version,
		oprpc.WithLogger(rs.Log),
	)
	server.AddAPI(GetSafeAPI(NewSafeAPI(rs.Backend)))
	rs.Log.Info("Safe API enabled")

	rs.Log.Info("Starting RPC server", "addr", cfg.RPC.ListenAddr, "port", cfg.RPC.ListenPort)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start RPC server: %w", err)
	}
	rs.rpcServer = server
	return nil
}

func (rs *RelayerService) Start(ctx context.Context) error {
	rs.Log.Info("Starting relayer", "chain", rs.Backend.ChainID())
	rs.Metrics.RecordUp()
	return nil
}

func (rs *RelayerService) Stop(ctx context.Context) error {
	rs.Log.Info("Stopping relayer")
	var result error
	if rs.rpcServer != nil {
		if err := rs.rpcServer.Stop(); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop RPC server: %w", err))
		}
	}
	if rs.metricsSrv != nil {
		if err := rs.metricsSrv.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if rs.handles != nil {
		if err := rs.handles.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to close handle store: %w", err))
		}
	}
	if rs.client != nil {
		rs.client.Close()
	}

	if result == nil {
		rs.stopped.Store(true)
		rs.Log.Info("Relayer stopped")
	}
	return result
}

func (rs *RelayerService) Stopped() bool {
	return rs.stopped.Load()
}
