package node

import "encoding/json"

// StatsSnapshot is one periodic stats report from a node, flattened from
// the wire frame. Frame counters default to -1 when the node did not
// include frame statistics.
type StatsSnapshot struct {
	Uptime         int64   `json:"uptime"`
	Players        int     `json:"players"`
	PlayingPlayers int     `json:"playing_players"`
	MemoryFree     int64   `json:"memory_free"`
	MemoryUsed     int64   `json:"memory_used"`
	MemoryAlloc    int64   `json:"memory_allocated"`
	MemoryReserved int64   `json:"memory_reservable"`
	CPUCores       int     `json:"cpu_cores"`
	SystemLoad     float64 `json:"system_load"`
	NodeLoad       float64 `json:"node_load"`
	FramesSent     int64   `json:"frames_sent"`
	FramesNulled   int64   `json:"frames_nulled"`
	FramesDeficit  int64   `json:"frames_deficit"`
}

type statsFrame struct {
	Uptime         int64 `json:"uptime"`
	Players        int   `json:"players"`
	PlayingPlayers int   `json:"playingPlayers"`
	Memory         struct {
		Free       int64 `json:"free"`
		Used       int64 `json:"used"`
		Allocated  int64 `json:"allocated"`
		Reservable int64 `json:"reservable"`
	} `json:"memory"`
	CPU struct {
		Cores        int     `json:"cores"`
		SystemLoad   float64 `json:"systemLoad"`
		LavalinkLoad float64 `json:"lavalinkLoad"`
	} `json:"cpu"`
	FrameStats *struct {
		Sent    int64 `json:"sent"`
		Nulled  int64 `json:"nulled"`
		Deficit int64 `json:"deficit"`
	} `json:"frameStats"`
}

// ParseStats decodes a stats frame payload into a snapshot.
func ParseStats(data []byte) (StatsSnapshot, error) {
	var f statsFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return StatsSnapshot{}, err
	}

	s := StatsSnapshot{
		Uptime:         f.Uptime,
		Players:        f.Players,
		PlayingPlayers: f.PlayingPlayers,
		MemoryFree:     f.Memory.Free,
		MemoryUsed:     f.Memory.Used,
		MemoryAlloc:    f.Memory.Allocated,
		MemoryReserved: f.Memory.Reservable,
		CPUCores:       f.CPU.Cores,
		SystemLoad:     f.CPU.SystemLoad,
		NodeLoad:       f.CPU.LavalinkLoad,
		FramesSent:     -1,
		FramesNulled:   -1,
		FramesDeficit:  -1,
	}
	if f.FrameStats != nil {
		s.FramesSent = f.FrameStats.Sent
		s.FramesNulled = f.FrameStats.Nulled
		s.FramesDeficit = f.FrameStats.Deficit
	}
	return s, nil
}
