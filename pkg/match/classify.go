package match

// Outcome classifies the relationship between the identifiers already on
// record for a database row and the identifiers discovered by matching.
type Outcome int

const (
	// NoInformation means neither side has an identifier. Warn.
	NoInformation Outcome = iota
	// PerfectMatch means both sides agree on a nonempty set. No action.
	PerfectMatch
	// Adopt means nothing was recorded and exactly one identifier was
	// discovered. The pass may store it.
	Adopt
	// MultipleCandidates means nothing was recorded and several
	// identifiers were discovered. Warn, leave the record alone.
	MultipleCandidates
	// RecordedOnly means every discovered identifier is already on record
	// but some recorded identifiers were not discovered. Those must be
	// verified independently (known catalog entry or known order).
	RecordedOnly
	// Conflict means both sides are nonempty with no overlap. Warn, never
	// auto-update.
	Conflict
	// AdditionalDiscovered means matching found a strict superset of the
	// recorded identifiers. Warn, do not add the extras automatically.
	AdditionalDiscovered
	// MixedOverlap means the sets overlap but each side has extras. Warn.
	MixedOverlap
)

// String returns a short description of the outcome.
func (o Outcome) String() string {
	switch o {
	case NoInformation:
		return "no information found"
	case PerfectMatch:
		return "perfect match"
	case Adopt:
		return "identifier found"
	case MultipleCandidates:
		return "multiple possible identifiers"
	case RecordedOnly:
		return "recorded identifiers unconfirmed"
	case Conflict:
		return "conflicting identifiers"
	case AdditionalDiscovered:
		return "additional identifiers found"
	case MixedOverlap:
		return "different identifiers found"
	default:
		return "unknown"
	}
}

// Classification is the result of comparing recorded and discovered
// identifier sets for one record.
type Classification[ID comparable] struct {
	Outcome Outcome

	// AdoptID is the identifier to store. Set only for Adopt.
	AdoptID ID

	// Extra holds discovered identifiers not on record, for
	// AdditionalDiscovered and MixedOverlap.
	Extra []ID

	// Unmatched holds recorded identifiers that were not discovered, for
	// RecordedOnly and MixedOverlap. The caller verifies these against an
	// independent source.
	Unmatched []ID
}

// Classify compares the recorded and discovered identifier sets and returns
// exactly one outcome. Duplicates in either input are ignored; slice order
// within Extra and Unmatched follows input order.
func Classify[ID comparable](recorded, discovered []ID) Classification[ID] {
	recSet := toSet(recorded)
	disSet := toSet(discovered)
	extra := subtract(discovered, recSet)
	unmatched := subtract(recorded, disSet)

	var c Classification[ID]
	switch {
	case len(recSet) == 0 && len(disSet) == 0:
		c.Outcome = NoInformation
	case len(extra) == 0 && len(unmatched) == 0:
		c.Outcome = PerfectMatch
	case len(recSet) == 0:
		if len(disSet) == 1 {
			c.Outcome = Adopt
			c.AdoptID = extra[0]
		} else {
			c.Outcome = MultipleCandidates
			c.Extra = extra
		}
	case len(extra) == 0:
		c.Outcome = RecordedOnly
		c.Unmatched = unmatched
	case len(unmatched) == len(recSet):
		// No discovered identifier is on record.
		c.Outcome = Conflict
		c.Extra = extra
		c.Unmatched = unmatched
	case len(unmatched) == 0:
		c.Outcome = AdditionalDiscovered
		c.Extra = extra
	default:
		c.Outcome = MixedOverlap
		c.Extra = extra
		c.Unmatched = unmatched
	}
	return c
}

func toSet[ID comparable](ids []ID) map[ID]struct{} {
	set := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// subtract returns the ids not present in exclude, input order preserved,
// duplicates collapsed.
func subtract[ID comparable](ids []ID, exclude map[ID]struct{}) []ID {
	var out []ID
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := exclude[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
