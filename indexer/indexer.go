// Package indexer maintains secondary indexes over committed blocks so the
// platform backend can query a user's purchase and claim history without
// scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/storage"
)

const (
	prefixUserActivity = "idx:user:activity:"
	prefixReferrals    = "idx:referrer:"
)

// Activity is one recorded user action.
type Activity struct {
	Kind        string `json:"kind"` // purchase, asset_buy, asset_sell, mint, claim, bonus_claim
	TxID        string `json:"tx_id"`
	BlockHeight int64  `json:"block_height"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount,omitempty"` // wei or whole INT, op-dependent
}

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventTokenPurchase, idx.onTokenPurchase)
	emitter.Subscribe(events.EventAssetBought, idx.onAssetTrade("asset_buy"))
	emitter.Subscribe(events.EventAssetSold, idx.onAssetTrade("asset_sell"))
	emitter.Subscribe(events.EventCrystalMinted, idx.onCrystalMinted)
	emitter.Subscribe(events.EventEarningsClaim, idx.onClaim("claim"))
	emitter.Subscribe(events.EventBonusClaim, idx.onClaim("bonus_claim"))
	emitter.Subscribe(events.EventReferralBonus, idx.onReferralBonus)
	return idx
}

// GetActivity returns a user's recorded actions in commit order.
func (idx *Indexer) GetActivity(user string) ([]Activity, error) {
	return idx.getActivities(prefixUserActivity + user)
}

// GetReferred returns the addresses whose purchases earned the referrer a bonus.
func (idx *Indexer) GetReferred(referrer string) ([]string, error) {
	data, err := idx.db.Get([]byte(prefixReferrals + referrer))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return out, nil
}

// ---- event handlers ----

func (idx *Indexer) onTokenPurchase(ev events.Event) {
	buyer, _ := ev.Data["buyer"].(string)
	value, _ := ev.Data["value"].(string)
	if buyer == "" {
		return
	}
	_ = idx.appendActivity(buyer, Activity{
		Kind:        "purchase",
		TxID:        ev.TxID,
		BlockHeight: ev.BlockHeight,
		Amount:      value,
	})
}

func (idx *Indexer) onAssetTrade(kind string) events.Handler {
	return func(ev events.Event) {
		user, _ := ev.Data["user"].(string)
		asset, _ := ev.Data["asset"].(string)
		if user == "" {
			return
		}
		_ = idx.appendActivity(user, Activity{
			Kind:        kind,
			TxID:        ev.TxID,
			BlockHeight: ev.BlockHeight,
			Asset:       asset,
			Amount:      fmt.Sprint(ev.Data["cost"]),
		})
	}
}

func (idx *Indexer) onCrystalMinted(ev events.Event) {
	user, _ := ev.Data["user"].(string)
	asset, _ := ev.Data["asset"].(string)
	if user == "" {
		return
	}
	_ = idx.appendActivity(user, Activity{
		Kind:        "mint",
		TxID:        ev.TxID,
		BlockHeight: ev.BlockHeight,
		Asset:       asset,
	})
}

func (idx *Indexer) onClaim(kind string) events.Handler {
	return func(ev events.Event) {
		user, _ := ev.Data["user"].(string)
		if user == "" {
			return
		}
		amount, _ := ev.Data["amount"].(string)
		if amount == "" {
			amount, _ = ev.Data["cro"].(string)
		}
		_ = idx.appendActivity(user, Activity{
			Kind:        kind,
			TxID:        ev.TxID,
			BlockHeight: ev.BlockHeight,
			Amount:      amount,
		})
	}
}

func (idx *Indexer) onReferralBonus(ev events.Event) {
	referrer, _ := ev.Data["referrer"].(string)
	referred, _ := ev.Data["referred"].(string)
	if referrer == "" || referred == "" {
		return
	}
	key := prefixReferrals + referrer
	list, _ := idx.GetReferred(referrer)
	for _, r := range list {
		if r == referred {
			return
		}
	}
	list = append(list, referred)
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	_ = idx.db.Set([]byte(key), data)
}

// ---- storage helpers ----

func (idx *Indexer) getActivities(key string) ([]Activity, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var acts []Activity
	if err := json.Unmarshal(data, &acts); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return acts, nil
}

func (idx *Indexer) appendActivity(user string, act Activity) error {
	key := prefixUserActivity + user
	acts, _ := idx.getActivities(key)
	acts = append(acts, act)
	data, err := json.Marshal(acts)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
