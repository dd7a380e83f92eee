package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event names as they appear in the event log.
const (
	EventDeposited         = "Deposited"
	EventWithdrawn         = "Withdrawn"
	EventRewardPaid        = "RewardPaid"
	EventRewardRateUpdated = "RewardRateUpdated"
	EventRewardsFunded     = "RewardsFunded"
)

// Event is an observation emitted once per successful operation.
type Event interface {
	EventName() string
}

type Deposited struct {
	User   common.Address
	Amount *uint256.Int
}

type Withdrawn struct {
	User   common.Address
	Amount *uint256.Int
}

type RewardPaid struct {
	User   common.Address
	Amount *uint256.Int
}

type RewardRateUpdated struct {
	Old *uint256.Int
	New *uint256.Int
}

type RewardsFunded struct {
	Amount *uint256.Int
}

func (Deposited) EventName() string         { return EventDeposited }
func (Withdrawn) EventName() string         { return EventWithdrawn }
func (RewardPaid) EventName() string        { return EventRewardPaid }
func (RewardRateUpdated) EventName() string { return EventRewardRateUpdated }
func (RewardsFunded) EventName() string     { return EventRewardsFunded }

// Emission is an event together with its position in the ledger history.
type Emission struct {
	Seq       uint64
	Pool      common.Address
	Timestamp uint64
	Event     Event
}

// EventSink receives emissions after the emitting operation has committed.
type EventSink interface {
	Publish(e Emission)
}

type discardSink struct{}

func (discardSink) Publish(Emission) {}
