package ledger

import (
	"context"
	"fmt"
	"time"
)

// SeedCredit is a test helper that funds an account through a regular issuance
// posting, so seeded balances stay derivable from the entry log.
func SeedCredit(store Store, accountID string, amount int64) error {
	now := time.Now().UTC()
	tx, err := NewTransaction("seed", accountID, amount, fmt.Sprintf("seed:%s:%d", accountID, now.UnixNano()), now)
	if err != nil {
		return err
	}
	return store.InAtomicUnit(context.Background(), []string{accountID}, func(u AtomicUnit) error {
		balance, err := u.Balance(context.Background(), accountID)
		if err != nil {
			return err
		}
		if err := u.AppendTransaction(context.Background(), tx); err != nil {
			return err
		}
		credit, err := NewEntry(accountID, tx.ID, EntryCredit, amount, balance+amount, now)
		if err != nil {
			return err
		}
		if err := u.AppendEntry(context.Background(), credit); err != nil {
			return err
		}
		_, err = u.Complete(context.Background(), tx.ID, now)
		return err
	})
}
