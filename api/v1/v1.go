package v1

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/incentive"
	"github.com/verilayer/verilayer/log"
)

const moduleName = "api_v1"

// DevChain is a substrate that can be driven by hand. It backs the /dev
// routes, which exist for local testing only.
type DevChain interface {
	Fund(addr ethCommon.Address, amount quantity.Quantity) error
	Advance(n uint64) (uint64, error)
	Balance(addr ethCommon.Address) quantity.Quantity
}

// Handler is the V1 API handler of the incentive layer.
type Handler struct {
	layer  *incentive.Layer
	events *events.Reader
	dev    DevChain
	logger *log.Logger
}

// NewHandler creates a new V1 API handler. dev may be nil, in which case
// the /dev routes are not registered.
func NewHandler(layer *incentive.Layer, evs *events.Reader, dev DevChain, l *log.Logger) *Handler {
	return &Handler{
		layer:  layer,
		events: evs,
		dev:    dev,
		logger: l.WithModule(moduleName),
	}
}

// RegisterRoutes implements the APIHandler interface.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		// Status endpoints.
		r.Get("/", h.GetStatus)

		// Deposit endpoints.
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/deposit", h.Deposit)
			r.Post("/withdraw", h.Withdraw)
			r.Get("/{address}", h.GetAccount)
			r.Get("/{address}/bonds/{task_id}", h.GetBond)
		})

		// Task endpoints.
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/", h.GetTask)
				r.Get("/finality", h.GetTaskFinality)
				r.Get("/events", h.ListTaskEvents)

				r.Post("/register", h.RegisterForTask)
				r.Post("/solution/commit", h.CommitSolution)
				r.Post("/state", h.ChangeTaskState)
				r.Post("/challenge", h.CommitChallenge)
				r.Post("/intent", h.RevealIntent)
				r.Post("/solution/reveal", h.RevealSolution)
				r.Post("/verification", h.RunVerificationGame)
				r.Post("/finalize", h.FinalizeTask)
				r.Post("/unbond", h.UnbondDeposit)
			})
		})

		// Event log.
		r.Get("/events", h.ListEvents)

		if h.dev != nil {
			r.Route("/dev", func(r chi.Router) {
				r.Post("/fund", h.DevFund)
				r.Post("/advance", h.DevAdvance)
				r.Get("/wallets/{address}", h.DevGetWallet)
			})
		}
	})
}

// Name implements the APIHandler interface.
func (h *Handler) Name() string {
	return "v1"
}
