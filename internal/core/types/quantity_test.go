package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseQuantity_RoundsHalfUpAtScale(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.0000"},
		{"125.5", "125.5000"},
		{"0.00005", "0.0001"},
		{"0.00004", "0.0000"},
		{"10.99995", "11.0000"},
		{"-0.00005", "-0.0001"},
	}
	for _, tc := range cases {
		q, err := ParseQuantity(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, FormatQuantity(q), tc.in)
	}
}

func TestParseQuantity_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1,5"} {
		_, err := ParseQuantity(in)
		require.Error(t, err, in)
	}
}

func TestQuantityArithmetic_IsExact(t *testing.T) {
	// 0.1 + 0.2 is the classic float trap.
	sum := MustQuantity("0.1").Add(MustQuantity("0.2"))
	require.Equal(t, "0.3000", FormatQuantity(sum))

	product := MustQuantity("0.5").Mul(MustQuantity("40"))
	require.Equal(t, "20.0000", FormatQuantity(product))
}

func TestMustQuantity_PanicsOnBadInput(t *testing.T) {
	require.Panics(t, func() { MustQuantity("not a number") })
}

func TestBusinessDate_NormalizesToUTCMidnight(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	stamp := time.Date(2025, 7, 15, 3, 30, 0, 0, jakarta) // 2025-07-14 20:30 UTC

	d := BusinessDate(stamp)
	require.Equal(t, "2025-07-14", FormatBusinessDate(d))
	require.Equal(t, time.UTC, d.Location())
	require.Zero(t, d.Hour())
}

func TestParseBusinessDate(t *testing.T) {
	d, err := ParseBusinessDate("2025-07-15")
	require.NoError(t, err)
	require.Equal(t, "2025-07-15", FormatBusinessDate(d))

	_, err = ParseBusinessDate("15-07-2025")
	require.Error(t, err)
}
