package classifier

import "github.com/elee1766/btdu/pkg/trie"

// compareCandidates orders two candidates by a four-step tie-break
// chain: read-write over read-only (reversible via
// PreferReadOnly), newer subvolume creation time over older
// (reversible via ChronoOldestFirst), shorter rendered path, then
// lexicographic order. It returns <0 if a sorts first, 0 if equal, >0
// if b sorts first.
//
// Tie-break 2 is scoped to the subvolume's own otime (RootMetas), not
// a per-directory btime: the ioctl layer this is grounded on resolves
// ROOT_ITEM otime but has no path to an arbitrary directory's creation
// time, so a directory candidate inherits its subvolume's otime for
// this comparison.
func compareCandidates(a, b candidate, metas map[uint64]RootMeta, flags PolicyFlags) int {
	if a.gp == b.gp {
		return 0
	}

	ma, mb := metas[a.rootID], metas[b.rootID]
	if ma.Readonly != mb.Readonly {
		aWins := !ma.Readonly
		if flags.PreferReadOnly {
			aWins = ma.Readonly
		}
		if aWins {
			return -1
		}
		return 1
	}

	if !ma.OTime.Equal(mb.OTime) {
		aWins := ma.OTime.After(mb.OTime)
		if flags.ChronoOldestFirst {
			aWins = ma.OTime.Before(mb.OTime)
		}
		if aWins {
			return -1
		}
		return 1
	}

	la, lb := a.gp.Length(), b.gp.Length()
	if la != lb {
		if la < lb {
			return -1
		}
		return 1
	}

	return trie.CompareGlobalPath(a.gp, b.gp)
}

// selectRepresentative picks the single candidate a sample's Represented
// metric attributes to, per compareCandidates. Panics on an empty slice:
// callers must handle the no-candidates case themselves (NO_INODE).
func selectRepresentative(cands []candidate, metas map[uint64]RootMeta, flags PolicyFlags) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if compareCandidates(c, best, metas, flags) < 0 {
			best = c
		}
	}
	return best
}
