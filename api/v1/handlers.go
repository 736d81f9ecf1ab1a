package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	apiCommon "github.com/verilayer/verilayer/api/common"
	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/incentive"
)

// GetStatus gets the current substrate height and event log size.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	height, err := h.layer.Height(ctx)
	if err != nil {
		h.logAndReply(ctx, "failed to get height", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, Status{
		Height:  height,
		Custody: h.layer.Custody(),
		Events:  h.events.LastSeq(),
	})
}

// Deposit moves value from the caller's wallet into its free balance.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "deposit", func(ctx context.Context, caller ethCommon.Address) (interface{}, error) {
		var req AmountRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		if err := h.layer.Deposit(ctx, caller, req.Amount); err != nil {
			return nil, err
		}
		return h.account(ctx, caller)
	})
}

// Withdraw pays free balance back to the caller's wallet.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "withdraw", func(ctx context.Context, caller ethCommon.Address) (interface{}, error) {
		var req AmountRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		if err := h.layer.Withdraw(ctx, caller, req.Amount); err != nil {
			return nil, err
		}
		return h.account(ctx, caller)
	})
}

// GetAccount gets the ledger record of an address.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := addressParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad address", w, err)
		return
	}
	acct, err := h.account(ctx, addr)
	if err != nil {
		h.logAndReply(ctx, "failed to get account", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, acct)
}

// GetBond gets the bond of an address on a task.
func (h *Handler) GetBond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := addressParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad address", w, err)
		return
	}
	taskID, err := taskIDParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad task id", w, err)
		return
	}
	bonded, err := h.layer.BondedDeposit(ctx, addr, taskID)
	if err != nil {
		h.logAndReply(ctx, "failed to get bond", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, BondResponse{Address: addr, TaskID: taskID, Bonded: bonded})
}

// ListTasks gets a page of tasks in id order.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := apiCommon.NewPagination(r)
	if err != nil {
		h.logAndReply(ctx, "bad pagination", w, err)
		return
	}
	tasks, err := h.layer.Tasks(ctx, p.Offset, p.Limit)
	if err != nil {
		h.logAndReply(ctx, "failed to list tasks", w, err)
		return
	}
	resp := TaskList{Tasks: make([]Task, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, renderTask(t))
	}
	h.reply(ctx, w, http.StatusOK, resp)
}

// CreateTask opens a new task owned by the caller.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := callerFrom(ctx)
	if err != nil {
		h.logAndReply(ctx, "create task", w, err)
		return
	}
	var req CreateTaskRequest
	if err = decodeBody(r, &req); err != nil {
		h.logAndReply(ctx, "create task", w, err)
		return
	}
	id, err := h.layer.CreateTask(ctx, caller, req.MinDeposit, req.Reward, req.TaskData, req.Timeout)
	if err != nil {
		h.logAndReply(ctx, "create task", w, err)
		return
	}
	h.reply(ctx, w, http.StatusCreated, CreateTaskResponse{TaskID: id})
}

// GetTask gets a task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := taskIDParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad task id", w, err)
		return
	}
	t, err := h.layer.Task(ctx, taskID)
	if err != nil {
		h.logAndReply(ctx, "failed to get task", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, renderTask(t))
}

// GetTaskFinality gets the settlement status of a task.
func (h *Handler) GetTaskFinality(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := taskIDParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad task id", w, err)
		return
	}
	f, err := h.layer.TaskFinality(ctx, taskID)
	if err != nil {
		h.logAndReply(ctx, "failed to get task finality", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, FinalityResponse{TaskID: taskID, Finality: uint8(f), Status: f.String()})
}

// ListTaskEvents gets all events about a task.
func (h *Handler) ListTaskEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := taskIDParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad task id", w, err)
		return
	}
	if _, err = h.layer.Task(ctx, taskID); err != nil {
		h.logAndReply(ctx, "failed to get task", w, err)
		return
	}
	evs, err := h.events.ForTask(ctx, taskID)
	if err != nil {
		h.logAndReply(ctx, "failed to list task events", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, EventList{Events: evs})
}

// ListEvents gets events with a sequence number above ?after, at most ?limit of them.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := apiCommon.NewPagination(r)
	if err != nil {
		h.logAndReply(ctx, "bad pagination", w, err)
		return
	}
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		if after, err = strconv.ParseUint(v, 10, 64); err != nil {
			h.logAndReply(ctx, "bad cursor", w, fmt.Errorf("%w: after: %s", apiCommon.ErrBadRequest, err))
			return
		}
	}
	evs, err := h.events.Since(ctx, after, int(p.Limit))
	if err != nil {
		h.logAndReply(ctx, "failed to list events", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, EventList{Events: evs})
}

// RegisterForTask makes the caller the solver of an open task.
func (h *Handler) RegisterForTask(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "register for task", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		var req RegisterRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return h.task(ctx, taskID, h.layer.RegisterForTask(ctx, caller, taskID, req.RandomBitsHash))
	})
}

// CommitSolution stores the solver's commitments.
func (h *Handler) CommitSolution(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "commit solution", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		var req CommitSolutionRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return h.task(ctx, taskID, h.layer.CommitSolution(ctx, caller, taskID, req.ResultHash, req.BlindingHash))
	})
}

// ChangeTaskState opens the challenge or intent reveal window.
func (h *Handler) ChangeTaskState(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "change task state", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		var req ChangeStateRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		target, err := incentive.ParseState(req.State)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", apiCommon.ErrBadRequest, err)
		}
		return h.task(ctx, taskID, h.layer.ChangeTaskState(ctx, caller, taskID, target))
	})
}

// CommitChallenge registers the caller as a verifier.
func (h *Handler) CommitChallenge(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "commit challenge", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		var req CommitChallengeRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return h.task(ctx, taskID, h.layer.CommitChallenge(ctx, caller, taskID, req.IntentHash))
	})
}

// RevealIntent opens the caller's intent commitment.
func (h *Handler) RevealIntent(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "reveal intent", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		var req RevealIntentRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return h.task(ctx, taskID, h.layer.RevealIntent(ctx, caller, taskID, req.Intent))
	})
}

// RevealSolution opens the solver's commitments.
func (h *Handler) RevealSolution(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "reveal solution", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		var req RevealSolutionRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return h.task(ctx, taskID, h.layer.RevealSolution(ctx, caller, taskID, req.Result, req.Blinding))
	})
}

// RunVerificationGame plays the verification game of a disputed task.
func (h *Handler) RunVerificationGame(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "run verification game", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		return h.task(ctx, taskID, h.layer.RunVerificationGame(ctx, caller, taskID))
	})
}

// FinalizeTask settles a task.
func (h *Handler) FinalizeTask(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "finalize task", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		return h.task(ctx, taskID, h.layer.FinalizeTask(ctx, caller, taskID))
	})
}

// UnbondDeposit releases the caller's bond on a settled task.
func (h *Handler) UnbondDeposit(w http.ResponseWriter, r *http.Request) {
	h.actOnTask(w, r, "unbond deposit", func(ctx context.Context, caller ethCommon.Address, taskID uint64) (interface{}, error) {
		released, err := h.layer.UnbondDeposit(ctx, caller, taskID)
		if err != nil {
			return nil, err
		}
		return UnbondResponse{Released: released}, nil
	})
}

// act runs a state-changing operation on behalf of the caller.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, ethCommon.Address) (interface{}, error)) {
	ctx := r.Context()

	caller, err := callerFrom(ctx)
	if err != nil {
		h.logAndReply(ctx, op, w, err)
		return
	}
	resp, err := fn(ctx, caller)
	if err != nil {
		h.logAndReply(ctx, op, w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, resp)
}

// actOnTask is act for operations addressing the task in the URL.
func (h *Handler) actOnTask(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, ethCommon.Address, uint64) (interface{}, error)) {
	taskID, err := taskIDParam(r)
	if err != nil {
		h.logAndReply(r.Context(), op, w, err)
		return
	}
	h.act(w, r, op, func(ctx context.Context, caller ethCommon.Address) (interface{}, error) {
		return fn(ctx, caller, taskID)
	})
}

// task returns the rendered task after a successful operation.
func (h *Handler) task(ctx context.Context, taskID uint64, opErr error) (interface{}, error) {
	if opErr != nil {
		return nil, opErr
	}
	t, err := h.layer.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return renderTask(t), nil
}

func (h *Handler) account(ctx context.Context, addr ethCommon.Address) (Account, error) {
	acct, err := h.layer.Account(ctx, addr)
	if err != nil {
		return Account{}, err
	}
	return renderAccount(acct), nil
}

func (h *Handler) reply(ctx context.Context, w http.ResponseWriter, code int, v interface{}) {
	if err := apiCommon.ReplyWithJSON(w, code, v); err != nil {
		h.logger.Error("failed to write response",
			"request_id", ctx.Value(common.RequestIDContextKey),
			"error", err,
		)
	}
}

func (h *Handler) logAndReply(ctx context.Context, msg string, w http.ResponseWriter, err error) {
	logFn := h.logger.Info
	if apiCommon.HttpCodeForError(err) >= http.StatusInternalServerError {
		logFn = h.logger.Error
	}
	logFn(msg,
		"request_id", ctx.Value(common.RequestIDContextKey),
		"error", err,
	)
	if err = apiCommon.ReplyWithError(w, err); err != nil {
		h.logger.Error("failed to reply with error",
			"request_id", ctx.Value(common.RequestIDContextKey),
			"error", err,
		)
	}
}

func callerFrom(ctx context.Context) (ethCommon.Address, error) {
	caller, ok := common.CallerFromContext(ctx)
	if !ok {
		return ethCommon.Address{}, apiCommon.ErrMissingCaller
	}
	return caller, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s", apiCommon.ErrBadRequest, err)
	}
	return nil
}

func taskIDParam(r *http.Request) (uint64, error) {
	id, err := common.ParseTaskID(chi.URLParam(r, "task_id"))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", apiCommon.ErrBadRequest, err)
	}
	return id, nil
}

func addressParam(r *http.Request) (ethCommon.Address, error) {
	addr, err := common.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return ethCommon.Address{}, fmt.Errorf("%w: %s", apiCommon.ErrBadRequest, err)
	}
	return addr, nil
}
