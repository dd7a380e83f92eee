package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const ledgerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Deposited",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Withdrawn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "reward", "type": "uint256"}
    ],
    "name": "RewardPaid",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldRate", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newRate", "type": "uint256"}
    ],
    "name": "RewardRateUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "RewardsFunded",
    "type": "event"
  }
]`

var (
	ledgerABI     abi.ABI
	ledgerABIOnce sync.Once
	ledgerABIErr  error
)

// LedgerABI returns the parsed ABI of the ledger events.
func LedgerABI() (abi.ABI, error) {
	ledgerABIOnce.Do(func() {
		ledgerABI, ledgerABIErr = abi.JSON(strings.NewReader(ledgerABIJSON))
	})
	return ledgerABI, ledgerABIErr
}
