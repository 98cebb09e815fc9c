package earnings

import (
	"encoding/json"
	"errors"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/vm"
)

func init() {
	vm.Register(core.TxInitEarningsUpdate, handleInitUpdate)
	vm.Register(core.TxUpdateAllEarnings, handleUpdateAll)
}

// handleInitUpdate opens a batch distribution round. While the round is
// active every other platform mutation is rejected, so each user's pool
// delta is fixed for the whole sweep.
func handleInitUpdate(ctx *vm.Context, _ json.RawMessage) error {
	p, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if !p.IsAdmin(ctx.Tx.From) {
		return errors.New("only the owner can start a distribution round")
	}
	if p.Cursor.Active {
		return errors.New("distribution round already in progress")
	}
	p.Cursor = core.DistributionCursor{Active: true, Index: 0}
	return ctx.State.SetPlatform(p)
}

// handleUpdateAll settles the next chunk of users in registration order and
// closes the round when the cursor reaches the end. Calling it more than
// necessary is harmless for users already settled (their delta is zero).
func handleUpdateAll(ctx *vm.Context, _ json.RawMessage) error {
	p, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if !p.IsAdmin(ctx.Tx.From) {
		return errors.New("only the owner can advance a distribution round")
	}
	if !p.Cursor.Active {
		return errors.New("no distribution round in progress")
	}

	end := p.Cursor.Index + core.EarningsBatchChunk
	if end > len(p.Users) {
		end = len(p.Users)
	}
	for _, addr := range p.Users[p.Cursor.Index:end] {
		pos, err := ctx.State.GetPosition(addr)
		if err != nil {
			return err
		}
		if pos == nil {
			continue
		}
		if pend := Pending(p, pos); !pend.IsZero() {
			pos.UnclaimedEarnings.Add(pos.UnclaimedEarnings, pend)
		}
		pos.LastClaimedAccumulation.Set(p.AccumulatedCro)
		if err := ctx.State.SetPosition(pos); err != nil {
			return err
		}
	}

	p.Cursor.Index = end
	if p.Cursor.Index >= len(p.Users) {
		p.Cursor = core.DistributionCursor{}
	}
	if err := ctx.State.SetPlatform(p); err != nil {
		return err
	}

	ctx.Emit(events.EventBatchProgress, map[string]any{
		"settled": end,
		"total":   len(p.Users),
		"done":    !p.Cursor.Active,
	})
	return nil
}
