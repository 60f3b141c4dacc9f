package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/jinmel/safe-relay/safe"
)

var (
	errHTTPErrorResponse = errors.New("HTTP error response")
)

const PathOwnerSafes = "/api/v1/owners/%s/safes/"

type TxServiceConfig struct {
	Endpoint string
}

func TxServiceDefaultConfig() *TxServiceConfig {
	return &TxServiceConfig{
		Endpoint: "",
	}
}

// TxServiceClient looks up the accounts an owner is associated with in the
// transaction indexing service.
type TxServiceClient struct {
	log        log.Logger
	config     *TxServiceConfig
	httpClient *client.BasicHTTPClient
}

func NewTxServiceClient(log log.Logger, config *TxServiceConfig) *TxServiceClient {
	httpClient := client.NewBasicHTTPClient(config.Endpoint, log)

	return &TxServiceClient{
		httpClient: httpClient,
		config:     config,
		log:        log,
	}
}

func (s *TxServiceClient) Enabled() bool {
	return s.config.Endpoint != ""
}

type ownerSafesResponse struct {
	Safes []common.Address `json:"safes"`
}

// AccountsByOwner lists the accounts owner is an owner of. Without a
// configured endpoint no accounts are known.
func (s *TxServiceClient) AccountsByOwner(ctx context.Context, owner common.Address) ([]common.Address, error) {
	if !s.Enabled() {
		s.log.Debug("Transaction service disabled, no accounts known", "owner", owner)
		return []common.Address{}, nil
	}
	path := fmt.Sprintf(PathOwnerSafes, owner.Hex())
	s.log.Debug("Fetching owner accounts", "path", path)
	header := http.Header{"Accept": {"application/json"}}
	resp, err := s.httpClient.Get(ctx, path, nil, header)
	if err != nil {
		return nil, safe.NewError(safe.KindNetworkRead, "fetch owner accounts", err)
	}

	defer resp.Body.Close()

	// An owner the service has never seen has no accounts.
	if resp.StatusCode == http.StatusNotFound {
		return []common.Address{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, safe.NewError(safe.KindNetworkRead, "fetch owner accounts",
			fmt.Errorf("%w: %s", errHTTPErrorResponse, resp.Status))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, safe.NewError(safe.KindNetworkRead, "fetch owner accounts", err)
	}

	var body ownerSafesResponse
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, safe.NewError(safe.KindNetworkRead, "decode owner accounts", err)
	}
	if body.Safes == nil {
		body.Safes = []common.Address{}
	}

	s.log.Info("Owner accounts fetched", "owner", owner, "count", len(body.Safes))
	return body.Safes, nil
}
