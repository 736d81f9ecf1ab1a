package v1

import (
	"net/http"

	apiCommon "github.com/verilayer/verilayer/api/common"
)

// DevFund mints value into a wallet on the in-memory substrate.
func (h *Handler) DevFund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FundRequest
	if err := decodeBody(r, &req); err != nil {
		h.logAndReply(ctx, "dev fund", w, err)
		return
	}
	if err := h.dev.Fund(req.Address, req.Amount); err != nil {
		h.logAndReply(ctx, "dev fund", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, WalletResponse{Address: req.Address, Balance: h.dev.Balance(req.Address)})
}

// DevAdvance mines empty blocks on the in-memory substrate.
func (h *Handler) DevAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AdvanceRequest
	if err := decodeBody(r, &req); err != nil {
		h.logAndReply(ctx, "dev advance", w, err)
		return
	}
	if req.Blocks == 0 {
		h.logAndReply(ctx, "dev advance", w, apiCommon.ErrBadRequest)
		return
	}
	height, err := h.dev.Advance(req.Blocks)
	if err != nil {
		h.logAndReply(ctx, "dev advance", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, AdvanceResponse{Height: height})
}

// DevGetWallet gets the substrate balance of a wallet.
func (h *Handler) DevGetWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := addressParam(r)
	if err != nil {
		h.logAndReply(ctx, "bad address", w, err)
		return
	}
	h.reply(ctx, w, http.StatusOK, WalletResponse{Address: addr, Balance: h.dev.Balance(addr)})
}
