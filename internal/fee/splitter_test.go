package fee

import (
	"errors"
	"math"
	"testing"

	"solana-trade-engine/internal/domain"
)

func TestSplitter_ComputeTax(t *testing.T) {
	s, err := NewSplitter(87, "TaxRecipient1111111111111111111111111111111")
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	tax, net := s.ComputeTax(10, false)
	if math.Abs(tax-0.087) > 1e-12 {
		t.Errorf("tax = %v, want 0.087", tax)
	}
	if math.Abs(net-9.913) > 1e-12 {
		t.Errorf("net = %v, want 9.913", net)
	}
}

func TestSplitter_SkipTax(t *testing.T) {
	s, err := NewSplitter(87, "TaxRecipient1111111111111111111111111111111")
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	tax, net := s.ComputeTax(10, true)
	if tax != 0 || net != 10 {
		t.Errorf("skipTax: tax=%v net=%v, want 0/10", tax, net)
	}
}

func TestSplitter_Disabled(t *testing.T) {
	tests := []struct {
		name      string
		bps       int
		recipient string
	}{
		{"zero rate", 0, "TaxRecipient1111111111111111111111111111111"},
		{"no recipient", 87, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.bps, tt.recipient)
			if err != nil {
				t.Fatalf("NewSplitter: %v", err)
			}
			if s.Enabled() {
				t.Error("splitter should be disabled")
			}
			tax, net := s.ComputeTax(10, false)
			if tax != 0 || net != 10 {
				t.Errorf("disabled: tax=%v net=%v, want 0/10", tax, net)
			}
		})
	}
}

func TestSplitter_NonPositiveAmount(t *testing.T) {
	s, err := NewSplitter(87, "TaxRecipient1111111111111111111111111111111")
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	tax, net := s.ComputeTax(0, false)
	if tax != 0 || net != 0 {
		t.Errorf("zero amount: tax=%v net=%v, want 0/0", tax, net)
	}
	tax, net = s.ComputeTax(-5, false)
	if tax != 0 || net != -5 {
		t.Errorf("negative amount: tax=%v net=%v, want 0/-5", tax, net)
	}
}

func TestNewSplitter_InvalidRate(t *testing.T) {
	for _, bps := range []int{-1, 10_001} {
		if _, err := NewSplitter(bps, "r"); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("bps %d: expected ErrValidation, got %v", bps, err)
		}
	}
}
