// Package fee computes the platform tax split on trade amounts.
package fee

import (
	"fmt"

	"solana-trade-engine/internal/domain"
)

// maxBps is the denominator of basis-point arithmetic.
const maxBps = 10_000

// Splitter computes the tax portion of a trade amount. A zero rate or empty
// recipient disables taxation entirely.
type Splitter struct {
	taxBps    int
	recipient string
}

// NewSplitter creates a Splitter. Rates outside [0, 10000] are rejected.
func NewSplitter(taxBps int, recipient string) (*Splitter, error) {
	if taxBps < 0 || taxBps > maxBps {
		return nil, fmt.Errorf("%w: tax bps must be in [0, %d], got %d", domain.ErrValidation, maxBps, taxBps)
	}
	return &Splitter{taxBps: taxBps, recipient: recipient}, nil
}

// Enabled reports whether any tax is collected.
func (s *Splitter) Enabled() bool {
	return s.taxBps > 0 && s.recipient != ""
}

// Recipient returns the tax destination address.
func (s *Splitter) Recipient() string {
	return s.recipient
}

// ComputeTax returns the tax and net portions of an amount. Zero tax when
// disabled or when the caller requested skipTax; no truncation is applied,
// amounts stay in full float precision.
func (s *Splitter) ComputeTax(amount float64, skipTax bool) (tax, net float64) {
	if skipTax || !s.Enabled() || amount <= 0 {
		return 0, amount
	}
	tax = amount * float64(s.taxBps) / maxBps
	return tax, amount - tax
}
