package models

// Horizons are the supported forecast distances in months.
var Horizons = []int{1, 2, 3, 6, 12, 24, 36}

func IsHorizon(h int) bool {
	for _, v := range Horizons {
		if v == h {
			return true
		}
	}
	return false
}
