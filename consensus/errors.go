package consensus

import "errors"

var (
	// ErrNoParticipants is returned when no requested agent can take part.
	ErrNoParticipants = errors.New("no participating agents available")
	// ErrNoVotes is returned when every participant finished without a vote.
	ErrNoVotes = errors.New("no votes collected from agents")
	// ErrConsensusTimeout is returned when the round deadline passed before any vote arrived.
	ErrConsensusTimeout = errors.New("consensus timeout")
)
