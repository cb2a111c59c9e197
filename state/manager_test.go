package state

import (
	"math/big"
	"testing"

	"creditnet/core/types"
	"creditnet/native/loan"
	"creditnet/storage"
)

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[0] = b
	return addr
}

func TestNextSequenceMonotonic(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	for want := uint64(1); want <= 5; want++ {
		got, err := manager.NextSequence([]byte("loan/id"))
		if err != nil {
			t.Fatalf("next sequence: %v", err)
		}
		if got != want {
			t.Fatalf("sequence = %d, want %d", got, want)
		}
	}
	// Independent counters do not interfere.
	got, err := manager.NextSequence([]byte("other"))
	if err != nil {
		t.Fatalf("next sequence: %v", err)
	}
	if got != 1 {
		t.Fatalf("fresh counter = %d, want 1", got)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := testAddr(1)

	account, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if len(account.Balances) != 0 {
		t.Fatalf("missing account balances = %+v, want empty", account.Balances)
	}

	account.Credit(types.SettlementSymbol, big.NewInt(1_000))
	account.Credit("ETH", big.NewInt(5))
	account.Nonce = 3
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	loaded, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.Nonce != 3 {
		t.Fatalf("nonce = %d, want 3", loaded.Nonce)
	}
	if loaded.Balance(types.SettlementSymbol).Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("settlement balance = %s, want 1000", loaded.Balance(types.SettlementSymbol))
	}
	if loaded.Balance("eth").Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("eth balance = %s, want 5", loaded.Balance("eth"))
	}
}

func TestLoanRoundTripAndIndex(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	borrower := testAddr(2)

	id, err := manager.NextLoanID()
	if err != nil {
		t.Fatalf("next loan id: %v", err)
	}
	if id != 1 {
		t.Fatalf("first loan id = %d, want 1", id)
	}

	record := &loan.Loan{
		ID:               id,
		Borrower:         borrower,
		CollateralAsset:  "ETH",
		CollateralAmount: big.NewInt(7),
		PrincipalUsd:     big.NewInt(1_500),
		InterestRateBps:  800,
		GraceSeconds:     3_600,
		OriginationTime:  1_700_000_000,
		Status:           loan.StatusActive,
	}
	if err := manager.PutLoan(record); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	if err := manager.IndexBorrowerLoan(borrower, id); err != nil {
		t.Fatalf("index loan: %v", err)
	}

	loaded, ok, err := manager.LoanByID(id)
	if err != nil || !ok {
		t.Fatalf("load loan: ok=%v err=%v", ok, err)
	}
	if loaded.PrincipalUsd.Cmp(big.NewInt(1_500)) != 0 || loaded.Status != loan.StatusActive {
		t.Fatalf("loaded loan = %+v", loaded)
	}

	if _, ok, err := manager.LoanByID(99); err != nil || ok {
		t.Fatalf("missing loan: ok=%v err=%v", ok, err)
	}

	ids, err := manager.LoanIDsByBorrower(borrower)
	if err != nil {
		t.Fatalf("index lookup: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("index = %v, want [%d]", ids, id)
	}
	if ids, err := manager.LoanIDsByBorrower(testAddr(3)); err != nil || len(ids) != 0 {
		t.Fatalf("unknown borrower index = %v err=%v, want empty", ids, err)
	}
}
