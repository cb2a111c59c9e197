package insurance

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

func newTestEngine(t *testing.T, params Params) (*Engine, *capturingEmitter) {
	t.Helper()
	engine := NewEngine(newMockStore(), params)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	return engine, emitter
}

func TestAllocateSkimsConfiguredShare(t *testing.T) {
	engine, emitter := newTestEngine(t, Params{AllocationBps: 1_000, MaxCoverageBps: 5_000})

	added, err := engine.Allocate(big.NewInt(50_000))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if added.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("added = %s, want 5000", added)
	}

	fund, err := engine.Fund()
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if fund.BalanceUsd.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("balance = %s, want 5000", fund.BalanceUsd)
	}
	if fund.TotalAllocatedUsd.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("total allocated = %s, want 5000", fund.TotalAllocatedUsd)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeInsuranceAllocated {
		t.Fatalf("events = %v, want one allocation", emitter.events)
	}
}

func TestAllocateRejectsNonPositive(t *testing.T) {
	engine, _ := newTestEngine(t, Params{})
	if _, err := engine.Allocate(big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("error = %v, want ErrInvalidAmount", err)
	}
	if _, err := engine.Allocate(nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestCoverLossFullCoverage(t *testing.T) {
	engine, emitter := newTestEngine(t, Params{AllocationBps: 10_000, MaxCoverageBps: 5_000})
	if _, err := engine.Allocate(big.NewInt(10_000)); err != nil {
		t.Fatalf("seed fund: %v", err)
	}

	paid, residual, err := engine.CoverLoss(7, big.NewInt(4_000), big.NewInt(1_500))
	if err != nil {
		t.Fatalf("cover loss: %v", err)
	}
	if paid.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("paid = %s, want 1500", paid)
	}
	if residual.Sign() != 0 {
		t.Fatalf("residual = %s, want 0", residual)
	}

	fund, err := engine.Fund()
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if fund.BalanceUsd.Cmp(big.NewInt(8_500)) != 0 {
		t.Fatalf("balance = %s, want 8500", fund.BalanceUsd)
	}
	last := emitter.events[len(emitter.events)-1]
	if last.EventType() != events.TypeInsurancePayout {
		t.Fatalf("last event = %s, want payout", last.EventType())
	}
}

func TestCoverLossCappedByPrincipalShare(t *testing.T) {
	engine, emitter := newTestEngine(t, Params{AllocationBps: 10_000, MaxCoverageBps: 5_000})
	if _, err := engine.Allocate(big.NewInt(100_000)); err != nil {
		t.Fatalf("seed fund: %v", err)
	}

	// Cap is 50% of a 4000 principal; the 3000 shortfall only gets 2000.
	paid, residual, err := engine.CoverLoss(8, big.NewInt(4_000), big.NewInt(3_000))
	if err != nil {
		t.Fatalf("cover loss: %v", err)
	}
	if paid.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("paid = %s, want 2000", paid)
	}
	if residual.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("residual = %s, want 1000", residual)
	}
	last := emitter.events[len(emitter.events)-1]
	if last.EventType() != events.TypeInsuranceBadDebt {
		t.Fatalf("last event = %s, want bad debt", last.EventType())
	}
}

func TestCoverLossCappedByBalance(t *testing.T) {
	engine, _ := newTestEngine(t, Params{AllocationBps: 10_000, MaxCoverageBps: 10_000})
	if _, err := engine.Allocate(big.NewInt(500)); err != nil {
		t.Fatalf("seed fund: %v", err)
	}

	paid, residual, err := engine.CoverLoss(9, big.NewInt(10_000), big.NewInt(2_000))
	if err != nil {
		t.Fatalf("cover loss: %v", err)
	}
	if paid.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("paid = %s, want 500", paid)
	}
	if residual.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("residual = %s, want 1500", residual)
	}

	fund, err := engine.Fund()
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if fund.BalanceUsd.Sign() != 0 {
		t.Fatalf("balance = %s, want 0", fund.BalanceUsd)
	}
}

func TestCoverLossEmptyFundIsAllBadDebt(t *testing.T) {
	engine, emitter := newTestEngine(t, Params{})

	paid, residual, err := engine.CoverLoss(10, big.NewInt(1_000), big.NewInt(400))
	if err != nil {
		t.Fatalf("cover loss: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("paid = %s, want 0", paid)
	}
	if residual.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("residual = %s, want 400", residual)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeInsuranceBadDebt {
		t.Fatalf("events = %v, want only bad debt", emitter.events)
	}
}

func TestDepositBypassesSkim(t *testing.T) {
	engine, _ := newTestEngine(t, Params{AllocationBps: 1_000, MaxCoverageBps: 5_000})
	balance, err := engine.Deposit(big.NewInt(9_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if balance.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("balance = %s, want 9000", balance)
	}
}
