package motion

// IsSignificant reports whether any region's area exceeds areaFloor.
func IsSignificant(regions []Region, areaFloor int) bool {
	for _, r := range regions {
		if r.Area > 0 && r.Area > areaFloor {
			return true
		}
	}
	return false
}

// SignificantRegions keeps the regions whose area exceeds areaFloor, in
// input order.
func SignificantRegions(regions []Region, areaFloor int) []Region {
	var out []Region
	for _, r := range regions {
		if r.Area > 0 && r.Area > areaFloor {
			out = append(out, r)
		}
	}
	return out
}
