package syncer

// Gap is an inclusive range of server sequence numbers missing from a view.
type Gap struct {
	Start int64
	End   int64
}

// FindGaps scans an ordered view for holes between consecutive sequence
// numbers. It never reports anything below the first held seq; history
// before that point belongs to backfill, not repair.
func FindGaps(view []*Message) []Gap {
	var gaps []Gap
	var prev int64 = -1
	for _, m := range view {
		if prev >= 0 && m.Seq > prev+1 {
			gaps = append(gaps, Gap{Start: prev + 1, End: m.Seq - 1})
		}
		if m.Seq > prev {
			prev = m.Seq
		}
	}
	return gaps
}

// Gaps reports the missing sequence ranges within a conversation's view.
func (mg *Merger) Gaps(conversationID string) []Gap {
	return FindGaps(mg.View(conversationID))
}
