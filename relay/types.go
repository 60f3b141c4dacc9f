package relay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jinmel/safe-relay/safe"
)

type Status string

const (
	Pending Status = "Pending"
	Success Status = "Success"
	Failed  Status = "Failed"
)

func (s Status) Terminal() bool { return s == Success || s == Failed }

// Task is a submitted relay request. Only the relay decides its status.
type Task struct {
	ID        string      `json:"taskId"`
	Status    Status      `json:"status"`
	StatusURL string      `json:"statusUrl"`
	TxHash    common.Hash `json:"transactionHash,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

func (t Task) String() string {
	return fmt.Sprintf("task %s: %s", t.ID, t.Status)
}

// Report is one status read from the relay.
type Report struct {
	Status Status
	TxHash common.Hash
	Reason string
}

// Service is the external relay: submission returns a task id, status reads
// never change relay-side state.
type Service interface {
	Submit(ctx context.Context, call safe.RelayCall) (string, error)
	TaskStatus(ctx context.Context, taskID string) (Report, error)
	StatusURL(taskID string) string
}
