package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestDedupKey(t *testing.T) {
	opp := &Opportunity{
		Path: []common.Address{
			common.HexToAddress("0xAAA0000000000000000000000000000000000001"),
			common.HexToAddress("0xBBB0000000000000000000000000000000000002"),
			common.HexToAddress("0xAAA0000000000000000000000000000000000001"),
		},
		Venues: []string{"venue-a", "venue-b"},
	}

	key := opp.DedupKey()
	assert.Equal(t,
		"0xaaa0000000000000000000000000000000000001-0xbbb0000000000000000000000000000000000002-0xaaa0000000000000000000000000000000000001|venue-a-venue-b",
		key)

	// Same cycle, same key, regardless of discovery metadata.
	other := &Opportunity{Path: opp.Path, Venues: opp.Venues, ScanCycle: 99}
	assert.Equal(t, key, other.DedupKey())
}

func TestDedupKeyDistinguishesVenueOrder(t *testing.T) {
	path := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		common.HexToAddress("0x01"),
	}
	a := &Opportunity{Path: path, Venues: []string{"venue-a", "venue-b"}}
	b := &Opportunity{Path: path, Venues: []string{"venue-b", "venue-a"}}

	assert.NotEqual(t, a.DedupKey(), b.DedupKey())
}

func TestIsCyclic(t *testing.T) {
	weth := common.HexToAddress("0x01")
	usdc := common.HexToAddress("0x02")
	dai := common.HexToAddress("0x03")

	tests := []struct {
		name string
		path []common.Address
		want bool
	}{
		{name: "two hop cycle", path: []common.Address{weth, usdc, weth}, want: true},
		{name: "three hop cycle", path: []common.Address{weth, usdc, dai, weth}, want: true},
		{name: "open path", path: []common.Address{weth, usdc, dai}, want: false},
		{name: "single hop", path: []common.Address{weth, weth}, want: false},
		{name: "empty", path: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := &Opportunity{Path: tt.path}
			assert.Equal(t, tt.want, opp.IsCyclic())
		})
	}
}

func TestPriceSamplePairKey(t *testing.T) {
	s := &PriceSample{
		TokenA: common.HexToAddress("0xAAA0000000000000000000000000000000000001"),
		TokenB: common.HexToAddress("0xBBB0000000000000000000000000000000000002"),
		Venue:  "venue-a",
	}
	assert.Equal(t,
		"0xaaa0000000000000000000000000000000000001-0xbbb0000000000000000000000000000000000002-venue-a",
		s.PairKey())
}

func TestFlashLoanCallGasCost(t *testing.T) {
	call := &FlashLoanCall{GasPrice: big.NewInt(30000000000), GasLimit: 400000}
	assert.Equal(t, big.NewInt(12000000000000000), call.GasCost())

	assert.Equal(t, big.NewInt(0), (&FlashLoanCall{GasLimit: 400000}).GasCost())
}

func TestReceiptGasSpent(t *testing.T) {
	r := &Receipt{GasUsed: 300000, GasPrice: big.NewInt(22000000000)}
	assert.Equal(t, big.NewInt(6600000000000000), r.GasSpent())

	assert.Equal(t, big.NewInt(0), (&Receipt{GasUsed: 300000}).GasSpent())
}
