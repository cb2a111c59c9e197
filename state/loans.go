package state

import (
	"errors"
	"fmt"

	"creditnet/native/loan"
)

var (
	loanPrefix       = []byte("loan/record/")
	loanIndexPrefix  = []byte("loan/byborrower/")
	loanSequenceName = []byte("loan/id")
)

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", loanPrefix, id))
}

func loanIndexKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", loanIndexPrefix, addr))
}

// LoanByID loads a loan record. The second return reports existence.
func (m *Manager) LoanByID(id uint64) (*loan.Loan, bool, error) {
	record := &loan.Loan{}
	ok, err := m.KVGet(loanKey(id), record)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	record.EnsureDefaults()
	return record, true, nil
}

// PutLoan persists a loan record keyed by its identifier.
func (m *Manager) PutLoan(record *loan.Loan) error {
	if record == nil {
		return errors.New("state: nil loan")
	}
	record.EnsureDefaults()
	return m.KVPut(loanKey(record.ID), record)
}

// NextLoanID allocates a monotonically increasing loan identifier starting
// at 1.
func (m *Manager) NextLoanID() (uint64, error) {
	return m.NextSequence(loanSequenceName)
}

// IndexBorrowerLoan appends the loan id to the borrower's index, keeping
// origination order.
func (m *Manager) IndexBorrowerLoan(addr [20]byte, id uint64) error {
	ids, err := m.LoanIDsByBorrower(addr)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	return m.KVPut(loanIndexKey(addr), ids)
}

// LoanIDsByBorrower returns every loan id the address has originated, oldest
// first.
func (m *Manager) LoanIDsByBorrower(addr [20]byte) ([]uint64, error) {
	var ids []uint64
	if _, err := m.KVGet(loanIndexKey(addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
