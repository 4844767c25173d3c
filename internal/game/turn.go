package game

// NextTurn picks the team after currentID in turn order. A currentID that is
// no longer present restarts the cycle at the first team without counting a
// new round. ok is false when there are no teams.
func NextTurn(teams []*Team, currentID string) (next int, wrapped bool, ok bool) {
	if len(teams) == 0 {
		return 0, false, false
	}

	current := -1
	for i, t := range teams {
		if t.ID == currentID {
			current = i
			break
		}
	}
	if current < 0 {
		return 0, false, true
	}

	next = (current + 1) % len(teams)
	return next, next == 0, true
}

// Winner is the highest scoring team; ties go to the earliest in turn order.
func Winner(teams []*Team) *Team {
	var best *Team
	for _, t := range teams {
		if best == nil || t.Score > best.Score {
			best = t
		}
	}
	return best
}
