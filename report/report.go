// Package report exports platform account data for offline analysis.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/vm/modules/earnings"
)

// Row is one user's exported snapshot. Monetary columns are wei; token
// columns are whole INT.
type Row struct {
	User              string
	AccruedEarnings   *uint256.Int // pending + unclaimed
	TotalInvested     *uint256.Int
	UnclaimedEarnings *uint256.Int
	TotalClaimed      *uint256.Int
	TokenBalance      uint64 // spendable INT
	TokenInAssets     uint64 // INT locked in gems and crystals (raw prices)
	TotalToken        uint64
}

var header = []string{
	"User",
	"AccruedEarnings",
	"TotalInvested",
	"UnclaimedEarnings",
	"TotalClaimed",
	"TokenBalance",
	"TokenInAssets",
	"TotalToken",
}

// Snapshot collects one Row per registered user, in registration order.
func Snapshot(st core.State) ([]Row, error) {
	p, err := st.GetPlatform()
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(p.Users))
	for _, addr := range p.Users {
		pos, err := st.GetPosition(addr)
		if err != nil {
			return nil, err
		}
		if pos == nil {
			continue
		}

		accrued := earnings.Pending(p, pos)
		accrued.Add(accrued, pos.UnclaimedEarnings)

		locked := lockedTokens(p, pos)
		rows = append(rows, Row{
			User:              addr,
			AccruedEarnings:   accrued,
			TotalInvested:     pos.TotalInvested,
			UnclaimedEarnings: pos.UnclaimedEarnings,
			TotalClaimed:      pos.TotalClaimed,
			TokenBalance:      pos.SpendableTokens,
			TokenInAssets:     locked,
			TotalToken:        pos.SpendableTokens + locked,
		})
	}
	return rows, nil
}

// WriteCSV exports a Snapshot of st as CSV.
func WriteCSV(w io.Writer, st core.State) error {
	rows, err := Snapshot(st)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.User,
			r.AccruedEarnings.Dec(),
			r.TotalInvested.Dec(),
			r.UnclaimedEarnings.Dec(),
			r.TotalClaimed.Dec(),
			strconv.FormatUint(r.TokenBalance, 10),
			strconv.FormatUint(r.TokenInAssets, 10),
			strconv.FormatUint(r.TotalToken, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// lockedTokens sums the raw INT prices of everything the user holds. Crystal
// holdings are valued at their unscaled catalog price, matching what the user
// would recover plus or minus pool drift.
func lockedTokens(p *core.Platform, pos *core.Position) uint64 {
	var total uint64
	for i, qty := range pos.Gems {
		if a, ok := p.AssetAt(false, i); ok {
			total += qty * a.UnscaledPrice
		}
	}
	for i, qty := range pos.Crystals {
		if a, ok := p.AssetAt(true, i); ok {
			total += qty * a.UnscaledPrice
		}
	}
	return total
}
