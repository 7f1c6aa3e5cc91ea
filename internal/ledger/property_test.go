package ledger

import (
	"context"
	"math/rand"
	"testing"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// randomAmount returns a positive amount with cents.
func randomAmount(r *rand.Rand) decimal.Decimal {
	return decimal.New(int64(r.Intn(100000)+1), -2)
}

func TestBalanceInvariantUnderRandomOperations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := rand.New(rand.NewSource(20260315))

	var accounts []string
	for _, name := range []string{"A", "B", "C"} {
		accounts = append(accounts, f.open(t, name, "100").ID)
	}
	pick := func() string { return accounts[r.Intn(len(accounts))] }
	cats := []string{"", f.expense.ID, f.income.ID}

	var plain, transfers []string
	for step := 0; step < 300; step++ {
		date := core.NewDate(2026, 1+r.Intn(12), 1+r.Intn(28))
		switch op := r.Intn(6); {
		case op == 0 || len(plain) == 0:
			amount := randomAmount(r)
			if r.Intn(2) == 0 {
				amount = amount.Neg()
			}
			tr, err := f.ledger.CreateTransaction(ctx, scope, NewTransaction{
				AccountID: pick(), CategoryID: cats[r.Intn(len(cats))], Amount: amount, Date: date, Description: "op",
			})
			if err != nil {
				t.Fatalf("step %d create: %v", step, err)
			}
			plain = append(plain, tr.ID)
		case op == 1:
			i := r.Intn(len(plain))
			acc, amount, cat := pick(), randomAmount(r), cats[1+r.Intn(2)]
			if _, err := f.ledger.UpdateTransaction(ctx, scope, plain[i], TransactionPatch{AccountID: &acc, Amount: &amount, CategoryID: &cat}); err != nil {
				t.Fatalf("step %d update: %v", step, err)
			}
		case op == 2:
			i := r.Intn(len(plain))
			if _, err := f.ledger.DeleteTransaction(ctx, scope, plain[i]); err != nil {
				t.Fatalf("step %d delete: %v", step, err)
			}
			plain = append(plain[:i], plain[i+1:]...)
		case op == 3 || len(transfers) == 0:
			from := pick()
			to := pick()
			for to == from {
				to = pick()
			}
			dest, err := f.ledger.CreateTransfer(ctx, scope, NewTransfer{
				FromAccountID: from, ToAccountID: to, Amount: randomAmount(r), Date: date, Description: "move",
			})
			if err != nil {
				t.Fatalf("step %d transfer: %v", step, err)
			}
			transfers = append(transfers, dest.ID)
		case op == 4:
			i := r.Intn(len(transfers))
			from, to := pick(), pick()
			amount := randomAmount(r)
			_, err := f.ledger.UpdateTransfer(ctx, scope, transfers[i], TransferPatch{FromAccountID: &from, ToAccountID: &to, Amount: &amount})
			if from == to {
				if err == nil {
					t.Fatalf("step %d: same-account update accepted", step)
				}
			} else if err != nil {
				t.Fatalf("step %d update transfer: %v", step, err)
			}
		default:
			i := r.Intn(len(transfers))
			if err := f.ledger.DeleteTransfer(ctx, scope, transfers[i]); err != nil {
				t.Fatalf("step %d delete transfer: %v", step, err)
			}
			transfers = append(transfers[:i], transfers[i+1:]...)
		}

		for _, id := range accounts {
			check, err := f.ledger.RecomputeBalance(ctx, scope, id)
			if err != nil {
				t.Fatal(err)
			}
			if !check.Consistent {
				t.Fatalf("step %d: account %s stored %s, computed %s", step, id, check.Stored, check.Computed)
			}
		}
	}
}
