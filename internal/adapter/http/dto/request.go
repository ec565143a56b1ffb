package dto

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// SaveOverrideRequest is the body of PUT /api/v1/overrides. Amount is kept
// as decoded (json.Number or string) and parsed by the override store.
type SaveOverrideRequest struct {
	Date             string `json:"date"`
	PSP              string `json:"psp"`
	Kind             string `json:"kind"`
	Amount           any    `json:"amount"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *SaveOverrideRequest) ToUseCaseInput(actor string) (usecase.SaveOverrideInput, error) {
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return usecase.SaveOverrideInput{}, domain.NewValidationError("date", err)
	}
	kind, err := domain.ParseOverrideKind(r.Kind)
	if err != nil {
		return usecase.SaveOverrideInput{}, err
	}
	return usecase.SaveOverrideInput{
		Date:             date,
		PSP:              strings.TrimSpace(r.PSP),
		Kind:             kind,
		Amount:           r.Amount,
		Actor:            actor,
		ConfirmationCode: r.ConfirmationCode,
	}, nil
}

// BulkAllocationRequest is the body of POST /api/v1/allocations/bulk.
type BulkAllocationRequest struct {
	Date    string         `json:"date"`
	Amounts map[string]any `json:"amounts"`
}

// ToUseCaseInput parses every amount; the first invalid one fails the
// whole request before any write is dispatched.
func (r *BulkAllocationRequest) ToUseCaseInput(actor string) (usecase.BulkAllocationInput, error) {
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return usecase.BulkAllocationInput{}, domain.NewValidationError("date", err)
	}

	amounts := make(map[string]decimal.Decimal, len(r.Amounts))
	for psp, raw := range r.Amounts {
		amount, err := domain.ParseAmount(raw)
		if err != nil {
			return usecase.BulkAllocationInput{}, fmt.Errorf("amounts[%s]: %w", psp, err)
		}
		amounts[psp] = amount
	}

	return usecase.BulkAllocationInput{Date: date, Amounts: amounts, Actor: actor}, nil
}

// DecodeJSON decodes one JSON document keeping numbers as json.Number.
func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
