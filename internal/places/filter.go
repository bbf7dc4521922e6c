package places

// restroomCategoryList holds the place types treated as likely to have a
// public restroom, in display order.
var restroomCategoryList = []string{
	"restaurant",
	"cafe",
	"food",
	"book_store",
	"point_of_interest",
	"supermarket",
	"home_goods_store",
	"movie_theater",
	"library",
}

var restroomCategories = func() map[string]struct{} {
	m := make(map[string]struct{}, len(restroomCategoryList))
	for _, c := range restroomCategoryList {
		m[c] = struct{}{}
	}
	return m
}()

// RestroomCategories returns the whitelist in a stable order.
func RestroomCategories() []string {
	out := make([]string, len(restroomCategoryList))
	copy(out, restroomCategoryList)
	return out
}

// Filter keeps the operational candidates that carry at least one whitelisted
// type. Input order is preserved and duplicates are kept; the returned ids
// line up with the returned places.
func Filter(candidates []Candidate) ([]FilteredPlace, []string) {
	filtered := make([]FilteredPlace, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !Keep(c) {
			continue
		}
		filtered = append(filtered, c)
		ids = append(ids, c.PlaceID)
	}
	return filtered, ids
}

// Keep reports whether a single candidate passes the filter.
func Keep(c Candidate) bool {
	if c.BusinessStatus != BusinessStatusOperational {
		return false
	}
	for _, t := range c.Types {
		if _, ok := restroomCategories[t]; ok {
			return true
		}
	}
	return false
}
