package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Currency string `json:"currency" validate:"omitempty,currency"`
	Ref      string `json:"payment_ref" validate:"required,ref"`
	Amount   int64  `json:"amount_cents" validate:"gt=0"`
	Date     string `json:"date,omitempty" validate:"omitempty,date"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name   string
		in     sample
		fields []FieldError
	}{
		{
			name: "valid",
			in:   sample{Currency: "usd", Ref: "pi_123", Amount: 100, Date: "2025-01-06"},
		},
		{
			name:   "bad currency",
			in:     sample{Currency: "us", Ref: "pi_1", Amount: 1},
			fields: []FieldError{{Field: "currency", Rule: "currency"}},
		},
		{
			name:   "missing ref",
			in:     sample{Amount: 1},
			fields: []FieldError{{Field: "payment_ref", Rule: "required"}},
		},
		{
			name:   "ref with spaces",
			in:     sample{Ref: "pi 1", Amount: 1},
			fields: []FieldError{{Field: "payment_ref", Rule: "ref"}},
		},
		{
			name: "zero amount and bad date",
			in:   sample{Ref: "pi_1", Date: "06.01.2025"},
			fields: []FieldError{
				{Field: "amount_cents", Rule: "gt"},
				{Field: "date", Rule: "date"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			var verrs Errors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.fields, []FieldError(verrs))
		})
	}
}

func TestErrorsMessage(t *testing.T) {
	err := Errors{{Field: "currency", Rule: "currency"}, {Field: "amount_cents", Rule: "gt"}}
	assert.Equal(t, "invalid fields: currency: currency, amount_cents: gt", err.Error())
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("2025-13-01")
	require.Error(t, err)
}
