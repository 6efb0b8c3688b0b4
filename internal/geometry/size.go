package geometry

import "math"

// GroupByRatio partitions sizes into groups sharing an identical width/height
// ratio. Groups and their members keep first-seen order.
func GroupByRatio(sizes []Size) [][]Size {
	var groups [][]Size
	for _, s := range sizes {
		if s.Height <= 0 {
			continue
		}
		ratio := s.Ratio()
		placed := false
		for i, g := range groups {
			if g[0].Ratio() == ratio {
				groups[i] = append(g, s)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []Size{s})
		}
	}
	return groups
}

// SelectSize picks the candidate best suited to the screen.
//
// The ratio group closest to the screen ratio wins (first group on ties). Inside
// it the candidate nearest to the screen in L1 pixel distance is chosen, preferring
// candidates whose height is at least the screen height so the short side is never
// upscaled. The second result is false when there is nothing to choose from.
func SelectSize(screen ScreenSize, candidates []Size) (Size, bool) {
	if !screen.Valid() {
		return Size{}, false
	}
	groups := GroupByRatio(candidates)
	if len(groups) == 0 {
		return Size{}, false
	}

	target := float32(screen.Width) / float32(screen.Height)
	var best []Size
	bestDiff := float32(math.MaxFloat32)
	for _, g := range groups {
		diff := g[0].Ratio() - target
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best = g
			bestDiff = diff
		}
	}

	if s, ok := closestSize(screen, best, true); ok {
		return s, true
	}
	return closestSize(screen, best, false)
}

func closestSize(screen ScreenSize, group []Size, heightFloor bool) (Size, bool) {
	var found Size
	ok := false
	bestDist := math.MaxInt
	for _, s := range group {
		if heightFloor && s.Height < screen.Height {
			continue
		}
		dist := absInt(s.Width-screen.Width) + absInt(s.Height-screen.Height)
		if dist < bestDist {
			found = s
			bestDist = dist
			ok = true
		}
	}
	return found, ok
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
