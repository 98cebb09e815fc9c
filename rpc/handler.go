package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/indexer"
	"github.com/interlude-gg/interlude-chain/vm/modules/earnings"
	"github.com/interlude-gg/interlude-chain/vm/modules/sale"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getBalance":
		return h.getBalance(req)
	case "getTokenBalance":
		return h.getTokenBalance(req)
	case "getTokenInfo":
		return h.getTokenInfo(req)
	case "getPosition":
		return h.getPosition(req)
	case "getPlatform":
		return h.getPlatform(req)
	case "getSteps":
		return h.getSteps(req)
	case "calculateUserEarnings":
		return h.calculateUserEarnings(req)
	case "eligibleForReferral":
		return h.eligibleForReferral(req)
	case "getActivity":
		return h.getActivity(req)
	case "getReferred":
		return h.getReferred(req)
	case "sendTx":
		return h.sendTx(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func addressParam(req Request) (string, *Response) {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return "", &resp
	}
	if params.Address == "" {
		resp := errResponse(req.ID, CodeInvalidParams, "address is required")
		return "", &resp
	}
	return params.Address, nil
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address": addr,
		"balance": acc.Balance.String(),
		"nonce":   acc.Nonce,
	})
}

func (h *Handler) getTokenBalance(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	acc, err := h.state.GetTokenAccount(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address": addr,
		"balance": acc.Balance.String(),
	})
}

func (h *Handler) getTokenInfo(req Request) Response {
	meta, err := h.state.GetTokenMeta()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"owner":           meta.Owner,
		"paused":          meta.Paused,
		"special_address": meta.SpecialAddress,
		"total_supply":    meta.TotalSupply.String(),
	})
}

func (h *Handler) getPosition(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	pos, err := h.state.GetPosition(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if pos == nil {
		return errResponse(req.ID, CodeInvalidParams, "unknown user")
	}
	return okResponse(req.ID, pos)
}

func (h *Handler) getPlatform(req Request) Response {
	p, err := h.state.GetPlatform()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"owner":                     p.Owner,
		"start_date":                p.StartDate,
		"total_sold":                p.TotalSold,
		"current_phase":             sale.Phase(p.Steps, p.TotalSold),
		"accumulated_cro":           p.AccumulatedCro.String(),
		"total_gem_power":           p.TotalGemPower,
		"total_crystal_power":       p.TotalCrystalPower,
		"total_int_in_gems":         p.TotalIntInGems,
		"total_int_in_crystals":     p.TotalIntInCrystals,
		"total_crystal_price_units": p.TotalCrystalPriceUnits,
		"users":                     len(p.Users),
		"referral_restricted":       p.ReferralRestricted,
		"only_whitelisted":          p.OnlyWhitelisted,
		"distribution_in_progress":  p.Cursor.Active,
	})
}

func (h *Handler) getSteps(req Request) Response {
	p, err := h.state.GetPlatform()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, p.Steps)
}

func (h *Handler) calculateUserEarnings(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	p, err := h.state.GetPlatform()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	pos, err := h.state.GetPosition(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	pending := earnings.Pending(p, pos)
	unclaimed := uint256.NewInt(0)
	claimed := uint256.NewInt(0)
	if pos != nil {
		unclaimed.Set(pos.UnclaimedEarnings)
		claimed.Set(pos.TotalClaimed)
	}
	total := new(uint256.Int).Add(pending, unclaimed)
	return okResponse(req.ID, map[string]any{
		"address":       addr,
		"pending":       pending.String(),
		"unclaimed":     unclaimed.String(),
		"total":         total.String(),
		"total_claimed": claimed.String(),
	})
}

func (h *Handler) eligibleForReferral(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	p, err := h.state.GetPlatform()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	eligible, err := sale.EligibleReferrer(h.state, p, addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, eligible)
}

func (h *Handler) getActivity(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	acts, err := h.indexer.GetActivity(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, acts)
}

func (h *Handler) getReferred(req Request) Response {
	addr, errResp := addressParam(req)
	if errResp != nil {
		return *errResp
	}
	refs, err := h.indexer.GetReferred(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, refs)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
