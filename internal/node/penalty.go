package node

import "math"

// UnavailablePenalty is the penalty reported for a node that is not
// connected or has no stats yet. It is larger than any real total, so an
// unreachable node is never preferred over a reachable one, without being
// an error condition.
const UnavailablePenalty = 9e30

// Penalty is the load-balancing score breakdown for a node, derived from a
// stats snapshot. Lower totals mean a more available node.
type Penalty struct {
	Player       float64 `json:"player"`
	CPU          float64 `json:"cpu"`
	NullFrame    float64 `json:"null_frame"`
	DeficitFrame float64 `json:"deficit_frame"`
	Total        float64 `json:"total"`
}

// ComputePenalty derives the penalty breakdown from a stats snapshot.
// Frame counters of -1 mean "not reported" and contribute zero.
func ComputePenalty(s StatsSnapshot) Penalty {
	p := Penalty{
		Player: float64(s.PlayingPlayers),
		CPU:    math.Pow(1.05, 100*s.SystemLoad)*10 - 10,
	}

	if s.FramesNulled != -1 {
		p.NullFrame = (math.Pow(1.03, 500*(float64(s.FramesNulled)/3000))*300 - 300) * 2
	}

	if s.FramesDeficit != -1 {
		p.DeficitFrame = math.Pow(1.03, 500*(float64(s.FramesDeficit)/3000))*600 - 600
	}

	p.Total = p.Player + p.CPU + p.NullFrame + p.DeficitFrame
	return p
}
