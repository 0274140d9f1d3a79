package airquality

import (
	"math"
	"sort"
	"time"
)

// MaxForecastDays is the number of future days returned by a forecast.
const MaxForecastDays = 3

// PM25ToAQI converts a PM2.5 concentration (µg/m³) to an AQI value using the
// piecewise-linear breakpoints. 150.4 maps to 250; saturation starts above it,
// where every value is 300. Rounding is half away from zero.
func PM25ToAQI(pm float64) int {
	if pm < 0 || math.IsNaN(pm) {
		pm = 0
	}

	var aqi float64
	switch {
	case pm <= 12.0:
		aqi = pm / 12.0 * 50
	case pm <= 35.4:
		aqi = 50 + (pm-12.0)*(50/23.4)
	case pm <= 55.4:
		aqi = 100 + (pm-35.4)*(50/20.0)
	case pm <= 150.4:
		aqi = 150 + (pm-55.4)*(100/95.0)
	default:
		return 300
	}
	return int(math.Round(aqi))
}

// AggregateForecast buckets samples by UTC calendar day, averages PM2.5 per day,
// converts each mean to AQI and returns at most MaxForecastDays days strictly
// after now's UTC date, in ascending order.
func AggregateForecast(samples []PM25Sample, now time.Time) []ForecastDay {
	type bucket struct {
		sum   float64
		count int
	}

	today := now.UTC().Format(time.DateOnly)
	buckets := make(map[string]*bucket)
	for _, s := range samples {
		date := s.Time.UTC().Format(time.DateOnly)
		if date <= today {
			continue
		}
		b, ok := buckets[date]
		if !ok {
			b = &bucket{}
			buckets[date] = b
		}
		b.sum += s.PM25
		b.count++
	}

	dates := make([]string, 0, len(buckets))
	for date := range buckets {
		dates = append(dates, date)
	}
	// YYYY-MM-DD sorts chronologically as a string.
	sort.Strings(dates)
	if len(dates) > MaxForecastDays {
		dates = dates[:MaxForecastDays]
	}

	days := make([]ForecastDay, 0, len(dates))
	for _, date := range dates {
		b := buckets[date]
		mean := 0.0
		if b.count > 0 {
			mean = b.sum / float64(b.count)
		}
		days = append(days, ForecastDay{Date: date, AQI: PM25ToAQI(mean)})
	}
	return days
}
