// Types for API requests and responses. Amounts are encoded as decimal
// strings, addresses and hashes as 0x-prefixed hex.
package v1

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/deposit"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/incentive"
)

// Status is the API response for GetStatus.
type Status struct {
	Height  uint64            `json:"height"`
	Custody ethCommon.Address `json:"custody"`

	// Events is the sequence number of the newest event.
	Events uint64 `json:"events"`
}

// AmountRequest is the request body of Deposit and Withdraw.
type AmountRequest struct {
	Amount quantity.Quantity `json:"amount"`
}

// CreateTaskRequest is the request body of CreateTask.
type CreateTaskRequest struct {
	MinDeposit quantity.Quantity `json:"min_deposit"`
	Reward     quantity.Quantity `json:"reward"`
	TaskData   ethCommon.Hash    `json:"task_data"`
	Timeout    uint64            `json:"timeout"`
}

// CreateTaskResponse is the API response for CreateTask.
type CreateTaskResponse struct {
	TaskID uint64 `json:"task_id"`
}

// RegisterRequest is the request body of RegisterForTask.
type RegisterRequest struct {
	RandomBitsHash ethCommon.Hash `json:"random_bits_hash"`
}

// CommitSolutionRequest is the request body of CommitSolution.
type CommitSolutionRequest struct {
	ResultHash   ethCommon.Hash `json:"result_hash"`
	BlindingHash ethCommon.Hash `json:"blinding_hash"`
}

// ChangeStateRequest is the request body of ChangeTaskState. State is a
// state name such as "ChallengeWindowOpen".
type ChangeStateRequest struct {
	State string `json:"state"`
}

// CommitChallengeRequest is the request body of CommitChallenge.
type CommitChallengeRequest struct {
	IntentHash ethCommon.Hash `json:"intent_hash"`
}

// RevealIntentRequest is the request body of RevealIntent.
type RevealIntentRequest struct {
	Intent uint64 `json:"intent"`
}

// RevealSolutionRequest is the request body of RevealSolution.
type RevealSolutionRequest struct {
	Result   commitment.Word `json:"result"`
	Blinding commitment.Word `json:"blinding"`
}

// UnbondResponse is the API response for UnbondDeposit.
type UnbondResponse struct {
	Released quantity.Quantity `json:"released"`
}

// FinalityResponse is the API response for GetTaskFinality.
type FinalityResponse struct {
	TaskID   uint64 `json:"task_id"`
	Finality uint8  `json:"finality"`
	Status   string `json:"status"`
}

type Verifier struct {
	Address    ethCommon.Address `json:"address"`
	IntentHash ethCommon.Hash    `json:"intent_hash"`
	Revealed   bool              `json:"revealed"`
	Intent     *uint64           `json:"intent,omitempty"`
}

type Payout struct {
	Account ethCommon.Address `json:"account"`
	Amount  quantity.Quantity `json:"amount"`
}

// Task is the API response for GetTask.
type Task struct {
	ID             uint64             `json:"id"`
	Owner          ethCommon.Address  `json:"owner"`
	MinDeposit     quantity.Quantity  `json:"min_deposit"`
	Reward         quantity.Quantity  `json:"reward"`
	TaskData       ethCommon.Hash     `json:"task_data"`
	Timeout        uint64             `json:"timeout"`
	State          string             `json:"state"`
	StateCode      uint8              `json:"state_code"`
	LastTransition uint64             `json:"last_transition"`
	Deadline       uint64             `json:"deadline"`
	Solver         *ethCommon.Address `json:"solver,omitempty"`
	Result         *commitment.Word   `json:"result,omitempty"`
	Verifiers      []Verifier         `json:"verifiers"`
	Verdict        string             `json:"verdict"`
	Finality       uint8              `json:"finality"`
	Settlement     []Payout           `json:"settlement,omitempty"`
}

// TaskList is the API response for ListTasks.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

// Account is the API response for GetAccount.
type Account struct {
	Address   ethCommon.Address            `json:"address"`
	Free      quantity.Quantity            `json:"free"`
	Bonded    map[uint64]quantity.Quantity `json:"bonded"`
	Deposited quantity.Quantity            `json:"deposited"`
	Withdrawn quantity.Quantity            `json:"withdrawn"`
	Credited  quantity.Quantity            `json:"credited"`
	Forfeited quantity.Quantity            `json:"forfeited"`
}

// BondResponse is the API response for GetBond.
type BondResponse struct {
	Address ethCommon.Address `json:"address"`
	TaskID  uint64            `json:"task_id"`
	Bonded  quantity.Quantity `json:"bonded"`
}

// EventList is the API response for ListEvents and ListTaskEvents.
type EventList struct {
	Events []events.Event `json:"events"`
}

// FundRequest is the request body of the dev Fund endpoint.
type FundRequest struct {
	Address ethCommon.Address `json:"address"`
	Amount  quantity.Quantity `json:"amount"`
}

// AdvanceRequest is the request body of the dev Advance endpoint.
type AdvanceRequest struct {
	Blocks uint64 `json:"blocks"`
}

// AdvanceResponse is the API response for the dev Advance endpoint.
type AdvanceResponse struct {
	Height uint64 `json:"height"`
}

// WalletResponse is the API response for the dev GetWallet endpoint.
type WalletResponse struct {
	Address ethCommon.Address `json:"address"`
	Balance quantity.Quantity `json:"balance"`
}

func renderTask(t *incentive.Task) Task {
	out := Task{
		ID:             t.ID,
		Owner:          t.Owner,
		MinDeposit:     t.MinDeposit,
		Reward:         t.Reward,
		TaskData:       t.TaskData,
		Timeout:        t.Timeout,
		State:          t.State.String(),
		StateCode:      uint8(t.State),
		LastTransition: t.LastTransition,
		Deadline:       t.Deadline(),
		Verifiers:      []Verifier{},
		Verdict:        t.Verdict.String(),
		Finality:       uint8(t.Finality),
	}
	if t.HasSolver {
		solver := t.Solver
		out.Solver = &solver
	}
	if t.Solution.Result.Revealed {
		result := t.Solution.Result.Value
		out.Result = &result
	}
	for _, v := range t.Verifiers {
		rv := Verifier{
			Address:    v.Address,
			IntentHash: v.Intent.Hash,
			Revealed:   v.Intent.Revealed,
		}
		if v.Intent.Revealed {
			intent := v.Intent.Value
			rv.Intent = &intent
		}
		out.Verifiers = append(out.Verifiers, rv)
	}
	for _, p := range t.Settlement {
		out.Settlement = append(out.Settlement, Payout{Account: p.Account, Amount: p.Amount})
	}
	return out
}

func renderAccount(a *deposit.Account) Account {
	return Account{
		Address:   a.Address,
		Free:      a.Free,
		Bonded:    a.Bonded,
		Deposited: a.Deposited,
		Withdrawn: a.Withdrawn,
		Credited:  a.Credited,
		Forfeited: a.Forfeited,
	}
}
