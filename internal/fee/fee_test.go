package fee

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		want  int64
	}{
		{name: "below minimum", total: 1000, want: 150},
		{name: "one cent order", total: 1, want: 150},
		{name: "exactly at minimum", total: 2500, want: 150},
		{name: "above minimum", total: 10000, want: 600},
		{name: "half rounds away from zero", total: 2525, want: 152},
		{name: "below half rounds down", total: 2507, want: 150},
		{name: "large order", total: 12345678, want: 740741},
		{name: "odd half", total: 10025, want: 602},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.total))
		})
	}
}

func TestComputeLowerBounds(t *testing.T) {
	for total := int64(1); total <= 50000; total += 7 {
		got := Compute(total)
		if got < MinCents {
			t.Fatalf("Compute(%d) = %d, below minimum %d", total, got, MinCents)
		}
		// round(total*0.06) == (total*6 + 50) / 100 для положительных сумм
		rounded := (total*6 + 50) / 100
		if got < rounded {
			t.Fatalf("Compute(%d) = %d, below rounded rate %d", total, got, rounded)
		}
	}
}
