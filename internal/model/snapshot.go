package model

import "time"

// LedgerSnapshot is the full persisted state of one (user, mode) ledger:
// orders, positions, holdings, and funds. Snapshots are namespaced by mode
// so PAPER and REAL state never collide.
type LedgerSnapshot struct {
	Mode      string     `json:"mode"`
	Orders    []Order    `json:"orders"`
	Positions []Position `json:"positions"`
	Holdings  []Holding  `json:"holdings"`
	Funds     Funds      `json:"funds"`
	SavedAt   time.Time  `json:"saved_at"`
}
