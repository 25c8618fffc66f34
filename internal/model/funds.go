package model

// Funds is the cash ledger for one (user, mode) pair, in paise.
// Total is derived: total == available + used must hold after every
// mutation, so it is always recomputed from its components.
type Funds struct {
	Available int64 `json:"available"`
	Used      int64 `json:"used"` // blocked / deployed margin
	Total     int64 `json:"total"`
}

// Recompute restores the derived total from available and used.
func (f *Funds) Recompute() {
	f.Total = f.Available + f.Used
}
