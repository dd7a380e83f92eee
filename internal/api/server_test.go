package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardLedger/internal/asset"
	"rewardLedger/internal/ledger"
	"rewardLedger/internal/service"
)

var (
	pool  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

// unreliableAsset moves tokens but loses the receipt while lost is set.
type unreliableAsset struct {
	*asset.Memory
	lost bool
}

func (a *unreliableAsset) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	ok, err := a.Memory.Transfer(ctx, to, amount)
	if a.lost {
		return false, &asset.OutcomeUnknownError{Method: "transfer", Err: context.DeadlineExceeded}
	}
	return ok, err
}

func newTestServer(t *testing.T) (*Server, *ledger.ManualClock) {
	s, clock, _ := newUnreliableServer(t)
	return s, clock
}

func newUnreliableServer(t *testing.T) (*Server, *ledger.ManualClock, *unreliableAsset) {
	t.Helper()
	mem := asset.NewMemory(pool)
	mem.Mint(alice, uint256.NewInt(1_000))
	mem.Mint(owner, uint256.NewInt(1_000))
	a := &unreliableAsset{Memory: mem}
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	l, err := ledger.New(ledger.Config{Pool: pool, Owner: owner, RewardRate: uint256.NewInt(10)}, a, nil, clock, nil)
	require.NoError(t, err)
	return NewServer(service.New(service.Config{}, l, nil, nil, nil, zap.NewNop()), zap.NewNop()), clock, a
}

func do(t *testing.T, s *Server, method, path string, caller common.Address, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != (common.Address{}) {
		req.Header.Set(CallerHeader, caller.Hex())
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestDepositAccrueClaim(t *testing.T) {
	s, clock := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/admin/fund", owner, `{"amount":"500"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/deposit", alice, `{"amount":"100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "100", decode[accountResponse](t, rec).Principal)

	clock.Advance(3 * time.Second)

	rec = do(t, s, http.MethodGet, "/v1/accounts/"+alice.Hex(), common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "30", decode[accountResponse](t, rec).Earned)

	rec = do(t, s, http.MethodPost, "/v1/claim", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "30", decode[claimResponse](t, rec).Paid)

	rec = do(t, s, http.MethodGet, "/v1/pool", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[poolResponse](t, rec)
	require.Equal(t, "100", p.TotalDeposited)
	require.Equal(t, "10", p.RewardRate)
	require.Equal(t, 1, p.Accounts)
}

func TestErrorStatusMapping(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		caller common.Address
		body   string
		status int
		kind   string
	}{
		{"missing caller", http.MethodPost, "/v1/deposit", common.Address{}, `{"amount":"1"}`, http.StatusBadRequest, "bad_request"},
		{"bad amount", http.MethodPost, "/v1/deposit", alice, `{"amount":"1.5"}`, http.StatusBadRequest, "bad_request"},
		{"zero amount", http.MethodPost, "/v1/deposit", alice, `{"amount":"0"}`, http.StatusBadRequest, "zero_amount"},
		{"over withdraw", http.MethodPost, "/v1/withdraw", alice, `{"amount":"1"}`, http.StatusConflict, "insufficient_balance"},
		{"not owner", http.MethodPost, "/v1/admin/rate", alice, `{"rate":"1"}`, http.StatusForbidden, "not_owner"},
		{"transfer failed", http.MethodPost, "/v1/deposit", alice, `{"amount":"5000"}`, http.StatusBadGateway, "transfer_failed"},
		{"exit empty", http.MethodPost, "/v1/exit", alice, "", http.StatusBadRequest, "zero_amount"},
		{"bad account", http.MethodGet, "/v1/accounts/nope", common.Address{}, "", http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.kind, decode[errorBody](t, rec).Kind)
		})
	}
}

func TestSetRateByOwner(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/v1/admin/rate", owner, `{"rate":"2e3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2000", decode[poolResponse](t, rec).RewardRate)
}

func TestLostReceiptHaltsAndReconciles(t *testing.T) {
	s, _, a := newUnreliableServer(t)

	rec := do(t, s, http.MethodPost, "/v1/deposit", alice, `{"amount":"100"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	a.lost = true
	rec = do(t, s, http.MethodPost, "/v1/withdraw", alice, `{"amount":"100"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, "transfer_unknown", decode[errorBody](t, rec).Kind)
	a.lost = false

	rec = do(t, s, http.MethodPost, "/v1/withdraw", alice, `{"amount":"100"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "halted", decode[errorBody](t, rec).Kind)

	rec = do(t, s, http.MethodGet, "/v1/pool", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decode[poolResponse](t, rec).Halted, "push withdrawal")

	rec = do(t, s, http.MethodPost, "/v1/admin/reconcile", alice, `{"executed":true}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, s, http.MethodPost, "/v1/admin/reconcile", owner, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/admin/reconcile", owner, `{"executed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[poolResponse](t, rec)
	require.Empty(t, p.Halted)
	require.Equal(t, "0", p.TotalDeposited)

	rec = do(t, s, http.MethodPost, "/v1/admin/reconcile", owner, `{"executed":false}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "nothing_to_reconcile", decode[errorBody](t, rec).Kind)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
