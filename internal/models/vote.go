package models

import (
	"fmt"
	"time"
)

// Ref is a polymorphic reference to any voter or voteable record.
type Ref struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Valid reports whether the reference names a concrete record.
func (r Ref) Valid() bool {
	return r.Type != "" && r.ID > 0
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.ID)
}

// Vote model - one ledger entry, immutable once created
type Vote struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	VoterType    string    `gorm:"size:64;not null;index:idx_votes_voter,priority:1;index:idx_votes_pair,priority:1" json:"voter_type"`
	VoterID      int64     `gorm:"not null;index:idx_votes_voter,priority:2;index:idx_votes_pair,priority:2" json:"voter_id"`
	VoteableType string    `gorm:"size:64;not null;index:idx_votes_voteable,priority:1;index:idx_votes_pair,priority:3" json:"voteable_type"`
	VoteableID   int64     `gorm:"not null;index:idx_votes_voteable,priority:2;index:idx_votes_pair,priority:4" json:"voteable_id"`
	Value        int       `gorm:"column:vote;not null;check:chk_votes_nonzero,vote <> 0" json:"vote"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

func (v Vote) Voter() Ref {
	return Ref{Type: v.VoterType, ID: v.VoterID}
}

func (v Vote) Voteable() Ref {
	return Ref{Type: v.VoteableType, ID: v.VoteableID}
}
