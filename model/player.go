package model

import "time"

// PlayerStats aggregates submitted results per participant
type PlayerStats struct {
	Username     string     `json:"username"`
	Chains       []string   `json:"chains"`
	TotalMatches int        `json:"totalMatches"`
	Wins         int        `json:"wins"`
	Losses       int        `json:"losses"`
	LastPlayed   *time.Time `json:"lastPlayed,omitempty"`
}

// AddChain appends chainID unless already present, returns true when added
func (p *PlayerStats) AddChain(chainID string) bool {
	for _, candidate := range p.Chains {
		if candidate == chainID {
			return false
		}
	}
	p.Chains = append(p.Chains, chainID)
	return true
}

// Clone returns a detached copy
func (p *PlayerStats) Clone() *PlayerStats {
	if p == nil {
		return nil
	}
	ret := *p
	ret.Chains = append([]string(nil), p.Chains...)
	if p.LastPlayed != nil {
		lastPlayed := *p.LastPlayed
		ret.LastPlayed = &lastPlayed
	}
	return &ret
}

// Snapshot is a point-in-time ranking of participants
type Snapshot struct {
	ID         string         `json:"snapshotId"`
	CreatedAt  time.Time      `json:"createdAt"`
	TopPlayers []*PlayerStats `json:"topPlayers"`
	AllPlayers int            `json:"allPlayers"`
}

// Clone returns a detached copy
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	ret := *s
	if s.TopPlayers != nil {
		ret.TopPlayers = make([]*PlayerStats, len(s.TopPlayers))
		for i, stats := range s.TopPlayers {
			ret.TopPlayers[i] = stats.Clone()
		}
	}
	return &ret
}
