package events

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"rewardLedger/internal/ledger"
	"rewardLedger/internal/model"
)

// Encode converts an emission into a storage record with log-style topics
// and ABI-encoded data.
func Encode(em ledger.Emission, ingestedAt time.Time) (model.EventRecord, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("parse ledger abi: %w", err)
	}

	name := em.Event.EventName()
	event, ok := parsed.Events[name]
	if !ok {
		return model.EventRecord{}, fmt.Errorf("unknown event %s", name)
	}

	var (
		indexed []common.Hash
		values  []interface{}
	)
	switch ev := em.Event.(type) {
	case ledger.Deposited:
		indexed = append(indexed, topicFromAddress(ev.User))
		values = append(values, ev.Amount.ToBig())
	case ledger.Withdrawn:
		indexed = append(indexed, topicFromAddress(ev.User))
		values = append(values, ev.Amount.ToBig())
	case ledger.RewardPaid:
		indexed = append(indexed, topicFromAddress(ev.User))
		values = append(values, ev.Amount.ToBig())
	case ledger.RewardRateUpdated:
		values = append(values, ev.Old.ToBig(), ev.New.ToBig())
	case ledger.RewardsFunded:
		values = append(values, ev.Amount.ToBig())
	default:
		return model.EventRecord{}, fmt.Errorf("unsupported event type %T", em.Event)
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	topics := make([]string, 0, 1+len(indexed))
	topics = append(topics, event.ID.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.EventRecord{
		Seq:        em.Seq,
		Pool:       em.Pool.Hex(),
		EventName:  name,
		Topics:     topics,
		Data:       hexutil.Encode(data),
		Timestamp:  em.Timestamp,
		IngestedAt: ingestedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// Decode reverses Encode. The event is identified by topic0, not by name.
func Decode(rec model.EventRecord) (ledger.Emission, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return ledger.Emission{}, fmt.Errorf("parse ledger abi: %w", err)
	}
	if len(rec.Topics) == 0 {
		return ledger.Emission{}, fmt.Errorf("record %d has no topics", rec.Seq)
	}
	topic0, err := parseHash(rec.Topics[0])
	if err != nil {
		return ledger.Emission{}, err
	}
	event, err := parsed.EventByID(topic0)
	if err != nil {
		return ledger.Emission{}, fmt.Errorf("lookup topic0 %s: %w", rec.Topics[0], err)
	}

	data, err := hexutil.Decode(rec.Data)
	if err != nil {
		return ledger.Emission{}, fmt.Errorf("decode data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return ledger.Emission{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	amounts, err := asUint256s(values)
	if err != nil {
		return ledger.Emission{}, fmt.Errorf("%s: %w", event.Name, err)
	}

	var user common.Address
	if countIndexed(event.Inputs) > 0 {
		if len(rec.Topics) < 2 {
			return ledger.Emission{}, fmt.Errorf("%s missing indexed user topic", event.Name)
		}
		topic, err := parseHash(rec.Topics[1])
		if err != nil {
			return ledger.Emission{}, err
		}
		user = common.BytesToAddress(topic.Bytes())
	}

	var ev ledger.Event
	switch event.Name {
	case ledger.EventDeposited:
		ev = ledger.Deposited{User: user, Amount: amounts[0]}
	case ledger.EventWithdrawn:
		ev = ledger.Withdrawn{User: user, Amount: amounts[0]}
	case ledger.EventRewardPaid:
		ev = ledger.RewardPaid{User: user, Amount: amounts[0]}
	case ledger.EventRewardRateUpdated:
		ev = ledger.RewardRateUpdated{Old: amounts[0], New: amounts[1]}
	case ledger.EventRewardsFunded:
		ev = ledger.RewardsFunded{Amount: amounts[0]}
	default:
		return ledger.Emission{}, fmt.Errorf("unsupported event %s", event.Name)
	}

	if !common.IsHexAddress(rec.Pool) {
		return ledger.Emission{}, fmt.Errorf("invalid pool address: %s", rec.Pool)
	}
	return ledger.Emission{
		Seq:       rec.Seq,
		Pool:      common.HexToAddress(rec.Pool),
		Timestamp: rec.Timestamp,
		Event:     ev,
	}, nil
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func parseHash(input string) (common.Hash, error) {
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid topic: %s", input)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid topic length: %s", input)
	}
	return common.BytesToHash(data), nil
}

func countIndexed(args abi.Arguments) int {
	n := 0
	for _, arg := range args {
		if arg.Indexed {
			n++
		}
	}
	return n
}

func asUint256s(values []interface{}) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, 0, len(values))
	for _, value := range values {
		b, ok := value.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unsupported value type %T", value)
		}
		v, overflow := uint256.FromBig(b)
		if overflow {
			return nil, fmt.Errorf("value exceeds 256 bits: %s", b)
		}
		out = append(out, v)
	}
	return out, nil
}
