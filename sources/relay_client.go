package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jinmel/safe-relay/relay"
	"github.com/jinmel/safe-relay/safe"
)

const (
	PathSponsoredCall   = "/relays/v2/sponsored-call"
	PathCallWithSyncFee = "/relays/v2/call-with-sync-fee"
	PathTaskStatus      = "/tasks/status/"

	DefaultRelayEndpoint   = "https://api.gelato.digital"
	DefaultRelayStatusBase = "https://relay.gelato.digital"
)

type RelayAPIConfig struct {
	Endpoint string
	APIKey   string
	// StatusBase is the human-facing host task links point to.
	StatusBase string
	Timeout    time.Duration
}

func RelayAPIDefaultConfig() *RelayAPIConfig {
	return &RelayAPIConfig{
		Endpoint:   DefaultRelayEndpoint,
		StatusBase: DefaultRelayStatusBase,
		Timeout:    30 * time.Second,
	}
}

// RelayAPIClient talks to a Gelato style task relay.
type RelayAPIClient struct {
	log        log.Logger
	config     *RelayAPIConfig
	httpClient *client.BasicHTTPClient
	postClient *http.Client
}

func NewRelayAPIClient(log log.Logger, config *RelayAPIConfig) *RelayAPIClient {
	return &RelayAPIClient{
		log:        log,
		config:     config,
		httpClient: client.NewBasicHTTPClient(config.Endpoint, log),
		postClient: &http.Client{Timeout: config.Timeout},
	}
}

type sponsoredCallRequest struct {
	ChainID       uint64         `json:"chainId"`
	Target        common.Address `json:"target"`
	Data          string         `json:"data"`
	SponsorAPIKey string         `json:"sponsorApiKey"`
	GasLimit      *string        `json:"gasLimit,omitempty"`
}

type syncFeeCallRequest struct {
	ChainID        uint64         `json:"chainId"`
	Target         common.Address `json:"target"`
	Data           string         `json:"data"`
	FeeToken       common.Address `json:"feeToken"`
	IsRelayContext bool           `json:"isRelayContext"`
	GasLimit       *string        `json:"gasLimit,omitempty"`
}

type submitResponse struct {
	TaskID  string `json:"taskId"`
	Message string `json:"message"`
}

func (s *RelayAPIClient) Submit(ctx context.Context, call safe.RelayCall) (string, error) {
	var gasLimit *string
	if call.Options.GasLimit != nil {
		gl := fmt.Sprintf("%d", *call.Options.GasLimit)
		gasLimit = &gl
	}

	var (
		path string
		body any
	)
	if call.Options.Sponsored {
		path = PathSponsoredCall
		body = sponsoredCallRequest{
			ChainID:       call.ChainID,
			Target:        call.Target,
			Data:          call.Data.String(),
			SponsorAPIKey: s.config.APIKey,
			GasLimit:      gasLimit,
		}
	} else {
		path = PathCallWithSyncFee
		body = syncFeeCallRequest{
			ChainID:        call.ChainID,
			Target:         call.Target,
			Data:           call.Data.String(),
			FeeToken:       call.Options.FeeToken,
			IsRelayContext: false,
			GasLimit:       gasLimit,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", safe.NewError(safe.KindRelayRejected, "encode relay request", err)
	}
	endpoint, err := url.JoinPath(s.config.Endpoint, path)
	if err != nil {
		return "", safe.NewError(safe.KindConfiguration, "relay endpoint", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", safe.NewError(safe.KindConfiguration, "relay endpoint", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	s.log.Info("Submitting relay request", "path", path, "target", call.Target, "chain", call.ChainID, "request_id", requestID)
	resp, err := s.postClient.Do(req)
	if err != nil {
		return "", safe.NewError(safe.KindRelayUnavailable, "submit", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", safe.NewError(safe.KindRelayUnavailable, "submit", err)
	}
	var out submitResponse
	decodeErr := json.Unmarshal(bodyBytes, &out)

	if err := classifyStatus("submit", resp, out.Message); err != nil {
		s.log.Warn("Relay refused request", "status", resp.StatusCode, "message", out.Message, "request_id", requestID)
		return "", err
	}
	// The relay accepted the request, so resubmitting could relay it twice.
	if decodeErr != nil {
		s.log.Error("Relay accepted request with an unreadable response", "request_id", requestID, "err", decodeErr)
		return "", safe.NewError(safe.KindRelayRejected, "submit", fmt.Errorf("%w: decode response: %v", errHTTPErrorResponse, decodeErr))
	}
	if out.TaskID == "" {
		s.log.Error("Relay accepted request without a task id", "request_id", requestID)
		return "", safe.NewError(safe.KindRelayRejected, "submit", fmt.Errorf("%w: response has no task id", errHTTPErrorResponse))
	}
	return out.TaskID, nil
}

// classifyStatus maps relay HTTP failures onto error kinds: client errors
// mean the request itself is wrong, everything else may be retried.
func classifyStatus(op string, resp *http.Response, message string) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	err := fmt.Errorf("%w: %s", errHTTPErrorResponse, resp.Status)
	if message != "" {
		err = fmt.Errorf("%w: %s", err, message)
	}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
		return safe.NewError(safe.KindRelayRejected, op, err)
	}
	return safe.NewError(safe.KindRelayUnavailable, op, err)
}

type taskStatusResponse struct {
	Task struct {
		TaskID           string `json:"taskId"`
		TaskState        string `json:"taskState"`
		TransactionHash  string `json:"transactionHash"`
		LastCheckMessage string `json:"lastCheckMessage"`
	} `json:"task"`
	Message string `json:"message"`
}

// TaskStatus reads the relay's view of a task. A task the relay does not
// know yet is reported as pending.
func (s *RelayAPIClient) TaskStatus(ctx context.Context, taskID string) (relay.Report, error) {
	header := http.Header{"Accept": {"application/json"}}
	resp, err := s.httpClient.Get(ctx, PathTaskStatus+url.PathEscape(taskID), nil, header)
	if err != nil {
		return relay.Report{}, safe.NewError(safe.KindRelayUnavailable, "task status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return relay.Report{Status: relay.Pending, Reason: "task not found"}, nil
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return relay.Report{}, safe.NewError(safe.KindRelayUnavailable, "task status", err)
	}
	var out taskStatusResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil && resp.StatusCode == http.StatusOK {
		return relay.Report{}, safe.NewError(safe.KindRelayUnavailable, "decode task status", err)
	}
	if err := classifyStatus("task status", resp, out.Message); err != nil {
		return relay.Report{}, err
	}

	report := relay.Report{
		Status: taskState(out.Task.TaskState),
		Reason: out.Task.LastCheckMessage,
	}
	if out.Task.TransactionHash != "" {
		report.TxHash = common.HexToHash(out.Task.TransactionHash)
	}
	s.log.Debug("Task status", "task", taskID, "state", out.Task.TaskState)
	return report, nil
}

func taskState(state string) relay.Status {
	switch state {
	case "ExecSuccess":
		return relay.Success
	case "ExecReverted", "Cancelled":
		return relay.Failed
	default:
		return relay.Pending
	}
}

func (s *RelayAPIClient) StatusURL(taskID string) string {
	return strings.TrimSuffix(s.config.StatusBase, "/") + PathTaskStatus + taskID
}
