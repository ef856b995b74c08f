package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZodiac(t *testing.T) {
	cases := []struct {
		month, day int
		want       string
	}{
		{3, 21, "Aries"},
		{4, 25, "Taurus"},
		{11, 15, "Scorpio"},
		{12, 25, "Capricorn"},
		{1, 15, "Capricorn"},
		{13, 32, UnknownZodiac},
		// Range boundaries
		{1, 19, "Capricorn"},
		{1, 20, "Aquarius"},
		{3, 20, "Pisces"},
		{7, 22, "Cancer"},
		{7, 23, "Leo"},
		{12, 21, "Sagittarius"},
		{12, 22, "Capricorn"},
		{0, 10, UnknownZodiac},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Zodiac(tc.month, tc.day), "%d/%d", tc.month, tc.day)
	}
}

func TestParseBirthday(t *testing.T) {
	req := require.New(t)

	day, month, year, ok := ParseBirthday("25/12/1990")
	req.True(ok)
	req.Equal([]int{25, 12, 1990}, []int{day, month, year})

	for _, bad := range []string{"", "1990-12-25", "25/13/1990", "32/01/1990", "aa/bb/cccc", "25/12"} {
		_, _, _, ok := ParseBirthday(bad)
		req.False(ok, bad)
	}
}
