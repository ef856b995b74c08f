package profile

import (
	"strconv"
	"strings"
)

const (
	UnknownZodiac  = "Unknown"
	DailyHoroscope = "Today is a good day to focus on yourself."
)

type zodiacRange struct {
	sign                 string
	startMonth, startDay int
	endMonth, endDay     int
}

// Checked in order; the first matching range wins.
var zodiacTable = []zodiacRange{
	{"Capricorn", 12, 22, 1, 19},
	{"Aquarius", 1, 20, 2, 18},
	{"Pisces", 2, 19, 3, 20},
	{"Aries", 3, 21, 4, 19},
	{"Taurus", 4, 20, 5, 20},
	{"Gemini", 5, 21, 6, 20},
	{"Cancer", 6, 21, 7, 22},
	{"Leo", 7, 23, 8, 22},
	{"Virgo", 8, 23, 9, 22},
	{"Libra", 9, 23, 10, 22},
	{"Scorpio", 10, 23, 11, 21},
	{"Sagittarius", 11, 22, 12, 21},
}

// Zodiac returns the western zodiac sign for a month and day, or "Unknown".
func Zodiac(month, day int) string {
	for _, z := range zodiacTable {
		if (month == z.startMonth && day >= z.startDay) || (month == z.endMonth && day <= z.endDay) {
			return z.sign
		}
	}
	return UnknownZodiac
}

// ParseBirthday splits a DD/MM/YYYY birthday into its parts.
func ParseBirthday(birthday string) (day, month, year int, ok bool) {
	parts := strings.Split(strings.TrimSpace(birthday), "/")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	day, month, year = nums[0], nums[1], nums[2]
	if day < 1 || day > 31 || month < 1 || month > 12 || year < 1 {
		return 0, 0, 0, false
	}
	return day, month, year, true
}
