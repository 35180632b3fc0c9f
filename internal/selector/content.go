package selector

// ContentBalance returns how many more items each content area needs to
// reach its target, clamped at zero. It returns nil when no targets are set.
func ContentBalance(administered []string, areas map[string]string, targets map[string]int) map[string]int {
	if len(targets) == 0 {
		return nil
	}
	seen := make(map[string]int, len(targets))
	for _, id := range administered {
		if area, ok := areas[id]; ok {
			seen[area]++
		}
	}
	needed := make(map[string]int, len(targets))
	for area, want := range targets {
		needed[area] = max(0, want-seen[area])
	}
	return needed
}

func anyNeeded(needed map[string]int) bool {
	for _, n := range needed {
		if n > 0 {
			return true
		}
	}
	return false
}
