package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"rewardLedger/internal/asset"
	"rewardLedger/internal/ledger"
)

func TestFileStoreMissingFile(t *testing.T) {
	store := &FileStore{Path: filepath.Join(t.TempDir(), "state.json")}
	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	user := common.HexToAddress("0x0000000000000000000000000000000000000001")

	mem := asset.NewMemory(pool)
	mem.Mint(user, uint256.NewInt(1000))
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	l, err := ledger.New(ledger.Config{Pool: pool, Owner: owner, RewardRate: uint256.NewInt(3)}, mem, nil, clock, nil)
	require.NoError(t, err)
	require.NoError(t, l.Deposit(ctx, user, uint256.NewInt(400)))
	clock.Advance(10 * time.Second)
	_, err = l.ClaimRewards(ctx, user)
	require.NoError(t, err)

	store := &FileStore{Path: filepath.Join(t.TempDir(), "nested", "state.json")}
	require.NoError(t, store.Save(ctx, l.Snapshot()))

	_, err = os.Stat(store.Path + ".tmp")
	require.True(t, os.IsNotExist(err))

	snap, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, l.Snapshot(), snap)
}

func TestFileStoreRejectsDirectory(t *testing.T) {
	store := &FileStore{Path: t.TempDir()}
	_, _, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestNilStoresAreNoops(t *testing.T) {
	ctx := context.Background()
	var fs *FileStore
	_, ok, err := fs.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, fs.Save(ctx, ledger.Snapshot{}))

	db := &DBStore{Name: "default"}
	_, ok, err = db.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, db.Save(ctx, ledger.Snapshot{}))
}
