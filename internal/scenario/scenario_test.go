package scenario

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rewardLedger/internal/checkpoint"
	"rewardLedger/internal/model"
	"rewardLedger/internal/storage"
)

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		file := file
		t.Run(filepath.Base(file), func(t *testing.T) {
			sc, err := Load(file)
			require.NoError(t, err)

			res, err := (&Runner{}).Run(context.Background(), sc)
			require.NoError(t, err)
			require.Equal(t, len(sc.Steps), res.Steps)
		})
	}
}

func TestRunWritesEventsAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	sc, err := Load(filepath.Join("testdata", "exit.yaml"))
	require.NoError(t, err)

	eventsPath := filepath.Join(dir, "events.jsonl")
	cp := &checkpoint.FileStore{Path: filepath.Join(dir, "state.json")}
	res, err := (&Runner{Storage: storage.NewJsonlStorage(eventsPath), Checkpoint: cp}).Run(context.Background(), sc)
	require.NoError(t, err)

	var names []string
	require.NoError(t, storage.ScanEvents(eventsPath, func(rec model.EventRecord) error {
		names = append(names, rec.EventName)
		return nil
	}))
	require.Equal(t, []string{"Deposited", "RewardsFunded", "Withdrawn", "RewardPaid"}, names)

	snap, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.Snapshot, snap)
	require.Equal(t, "0", snap.TotalDeposited)
}

func TestExpectationMismatchFails(t *testing.T) {
	sc, err := Parse([]byte(`
owner: "0x00000000000000000000000000000000000000ff"
pool: "0x00000000000000000000000000000000000000aa"
rate: "1"
accounts:
  alice: "0x0000000000000000000000000000000000000001"
mint:
  alice: "10"
steps:
  - op: deposit
    caller: alice
    amount: "10"
  - op: advance
    seconds: 3
  - op: expect
    expect:
      account: alice
      earned: "4"
`))
	require.NoError(t, err)

	_, err = (&Runner{}).Run(context.Background(), sc)
	require.ErrorContains(t, err, "step 3 (expect): earned: got 3, want 4")
}

func TestUnexpectedSuccessFails(t *testing.T) {
	sc, err := Parse([]byte(`
owner: "0x00000000000000000000000000000000000000ff"
pool: "0x00000000000000000000000000000000000000aa"
steps:
  - op: set-rate
    caller: owner
    rate: "1"
    error: NotOwner
`))
	require.NoError(t, err)

	_, err = (&Runner{}).Run(context.Background(), sc)
	require.ErrorContains(t, err, "expected NotOwner, operation succeeded")
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad owner": `owner: "nope"
pool: "0x00000000000000000000000000000000000000aa"`,
		"unknown op": `owner: "0x00000000000000000000000000000000000000ff"
pool: "0x00000000000000000000000000000000000000aa"
steps:
  - op: teleport`,
		"missing amount": `owner: "0x00000000000000000000000000000000000000ff"
pool: "0x00000000000000000000000000000000000000aa"
steps:
  - op: deposit
    caller: owner`,
		"unknown error kind": `owner: "0x00000000000000000000000000000000000000ff"
pool: "0x00000000000000000000000000000000000000aa"
steps:
  - op: claim
    caller: owner
    error: Boom`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}
