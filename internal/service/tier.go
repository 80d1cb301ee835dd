package service

import (
	"sort"

	"loyalty-points/internal/model"
)

// ResolveTier picks the badge for a user with totalPoints at rank.
//
// Badges are walked by minPoints descending; the first one whose minimum is
// met and whose topPoints ceiling (if any) admits rank wins. A user who
// qualifies for none gets the lowest badge. An empty table yields "".
func ResolveTier(badges []*model.Badge, totalPoints int64, rank int) string {
	if len(badges) == 0 {
		return ""
	}

	ordered := badges
	if !sort.SliceIsSorted(ordered, byMinPointsDesc(ordered)) {
		ordered = append([]*model.Badge(nil), badges...)
		sort.SliceStable(ordered, byMinPointsDesc(ordered))
	}

	for _, b := range ordered {
		if totalPoints < b.MinPoints {
			continue
		}
		if b.TopPoints != nil && rank > *b.TopPoints {
			continue
		}
		return b.Name
	}
	return ordered[len(ordered)-1].Name
}

func byMinPointsDesc(badges []*model.Badge) func(i, j int) bool {
	return func(i, j int) bool { return badges[i].MinPoints > badges[j].MinPoints }
}

// tierOrDefault maps an empty tier table to model.DefaultTier.
func tierOrDefault(tier string) string {
	if tier == "" {
		return model.DefaultTier
	}
	return tier
}
