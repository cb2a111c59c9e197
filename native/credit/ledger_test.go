package credit

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"creditnet/core/events"
)

type mockStore struct {
	kv map[string][]byte
}

func newMockStore() *mockStore {
	return &mockStore{kv: make(map[string][]byte)}
}

func (m *mockStore) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(event events.Event) {
	c.events = append(c.events, event)
}

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.EventType())
	}
	return out
}

func newTestLedger(t *testing.T) (*Ledger, *capturingEmitter) {
	t.Helper()
	ledger := NewLedger(newMockStore())
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)
	ledger.SetNowFunc(func() uint64 { return 1_700_000_000 })
	return ledger, emitter
}

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

func TestLedgerFirstSeenStamp(t *testing.T) {
	ledger, _ := newTestLedger(t)
	profile, err := ledger.Profile(testAddr(1))
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.FirstSeen != 1_700_000_000 {
		t.Fatalf("first seen = %d, want now", profile.FirstSeen)
	}
}

func TestLedgerLoanLifecycleCounters(t *testing.T) {
	ledger, emitter := newTestLedger(t)
	addr := testAddr(2)

	if err := ledger.RecordLoanCreated(addr, big.NewInt(5_000), big.NewInt(10_000), "eth", false); err != nil {
		t.Fatalf("loan created: %v", err)
	}
	if err := ledger.RecordLoanCreated(addr, big.NewInt(2_000), big.NewInt(2_500), "wbtc", true); err != nil {
		t.Fatalf("loan created: %v", err)
	}
	if err := ledger.RecordRepayment(addr, big.NewInt(3_000), false); err != nil {
		t.Fatalf("repayment: %v", err)
	}
	if err := ledger.RecordRepayment(addr, big.NewInt(2_200), true); err != nil {
		t.Fatalf("final repayment: %v", err)
	}
	if err := ledger.RecordLiquidation(addr); err != nil {
		t.Fatalf("liquidation: %v", err)
	}

	agg, err := ledger.Aggregate(addr)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.TotalLoans != 2 || agg.RepaidLoans != 1 || agg.LiquidatedLoans != 1 || agg.HighLtvLoans != 1 {
		t.Fatalf("counters off: %+v", agg)
	}
	if agg.TotalBorrowedUsd.Cmp(big.NewInt(7_000)) != 0 {
		t.Fatalf("borrowed = %s, want 7000", agg.TotalBorrowedUsd)
	}
	if agg.TotalRepaidUsd.Cmp(big.NewInt(5_200)) != 0 {
		t.Fatalf("repaid = %s, want 5200", agg.TotalRepaidUsd)
	}
	if agg.TotalCollateralUsd.Cmp(big.NewInt(12_500)) != 0 {
		t.Fatalf("collateral = %s, want 12500", agg.TotalCollateralUsd)
	}

	profile, err := ledger.Profile(addr)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.CollateralAssets) != 2 {
		t.Fatalf("collateral assets = %v, want ETH and WBTC", profile.CollateralAssets)
	}
	if !profile.HasCollateralAsset("ETH") || !profile.HasCollateralAsset("WBTC") {
		t.Fatalf("missing normalized assets: %v", profile.CollateralAssets)
	}

	want := []string{
		events.TypeAggregateLoanOpened,
		events.TypeAggregateLoanOpened,
		events.TypeAggregateRepayment,
		events.TypeAggregateRepayment,
		events.TypeAggregateLiquidated,
	}
	got := emitter.types()
	if len(got) != len(want) {
		t.Fatalf("event count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	addr := testAddr(3)
	if err := ledger.RecordLoanCreated(addr, big.NewInt(0), big.NewInt(100), "eth", false); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero principal error = %v, want ErrInvalidAmount", err)
	}
	if err := ledger.RecordRepayment(addr, nil, false); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil repayment error = %v, want ErrInvalidAmount", err)
	}
	if _, err := ledger.BondStake(addr, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative bond error = %v, want ErrInvalidAmount", err)
	}
}

func TestLedgerStakeBondUnbond(t *testing.T) {
	ledger, _ := newTestLedger(t)
	addr := testAddr(4)

	total, err := ledger.BondStake(addr, big.NewInt(500))
	if err != nil {
		t.Fatalf("bond: %v", err)
	}
	if total.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("total after bond = %s, want 500", total)
	}
	total, err = ledger.UnbondStake(addr, big.NewInt(200))
	if err != nil {
		t.Fatalf("unbond: %v", err)
	}
	if total.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("total after unbond = %s, want 300", total)
	}
	if _, err := ledger.UnbondStake(addr, big.NewInt(400)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("over-unbond error = %v, want ErrInsufficientStake", err)
	}
}

func TestLedgerChainScoreLastWriteWins(t *testing.T) {
	ledger, _ := newTestLedger(t)
	addr := testAddr(5)

	if err := ledger.ReportChainScore(addr, "eth-mainnet", 70, 100); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if err := ledger.ReportChainScore(addr, "eth-mainnet", 85, 200); err != nil {
		t.Fatalf("newer report: %v", err)
	}
	if err := ledger.ReportChainScore(addr, "eth-mainnet", 10, 150); !errors.Is(err, ErrStaleChainReport) {
		t.Fatalf("stale report error = %v, want ErrStaleChainReport", err)
	}
	if err := ledger.ReportChainScore(addr, "osmosis-1", 101, 300); !errors.Is(err, ErrInvalidChainScore) {
		t.Fatalf("out-of-range error = %v, want ErrInvalidChainScore", err)
	}

	profile, err := ledger.Profile(addr)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.ChainScores) != 1 {
		t.Fatalf("chain scores = %+v, want a single entry", profile.ChainScores)
	}
	if profile.ChainScores[0].Score != 85 || profile.ChainScores[0].ReportedAt != 200 {
		t.Fatalf("stored report = %+v, want newest", profile.ChainScores[0])
	}
}

func TestLedgerGovernanceSnapshotsOverwrite(t *testing.T) {
	ledger, _ := newTestLedger(t)
	addr := testAddr(6)

	if err := ledger.ReportGovernance(addr, 5, 1, 200); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := ledger.ReportGovernance(addr, 12, 2, 450); err != nil {
		t.Fatalf("report: %v", err)
	}
	profile, err := ledger.Profile(addr)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.GovernanceVotes != 12 || profile.GovernanceProps != 2 || profile.DelegatedPowerBps != 450 {
		t.Fatalf("governance snapshot = %+v, want latest values", profile)
	}
}

func TestLedgerSnapshotRoundTripsThroughStorage(t *testing.T) {
	store := newMockStore()
	ledger := NewLedger(store)
	ledger.SetNowFunc(func() uint64 { return 1_700_000_000 })
	addr := testAddr(7)

	if _, err := ledger.BondStake(addr, big.NewInt(1_000)); err != nil {
		t.Fatalf("bond: %v", err)
	}
	if err := ledger.RecordLoanCreated(addr, big.NewInt(4_000), big.NewInt(8_000), "ATOM", false); err != nil {
		t.Fatalf("loan: %v", err)
	}

	// A fresh ledger over the same store must see identical state.
	reopened := NewLedger(store)
	profile, agg, err := reopened.Snapshot(addr)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if profile.StakedAmount.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("stake = %s, want 1000", profile.StakedAmount)
	}
	if agg.TotalLoans != 1 || agg.TotalBorrowedUsd.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("aggregate = %+v, want persisted counters", agg)
	}
}
