package cashbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/money"
)

func testDrawer() *Drawer {
	return &Drawer{
		ID:             "d-1",
		Status:         DrawerOpen,
		OpeningLocal:   money.MustParse("100.00"),
		OpeningForeign: money.MustParse("50.00"),
		OpeningMobile:  money.MustParse("0.00"),
		IncomeLocal:    money.MustParse("200.00"),
		ExpenseLocal:   money.MustParse("30.00"),
		MobileTotal:    money.MustParse("80.00"),
	}
}

func TestEvaluateCountsBoundary(t *testing.T) {
	d := testDrawer()

	// Expected: local 270.00, foreign 50.00, mobile 80.00.
	// A difference of exactly one cent is not a discrepancy; two cents is.
	results, discrepant, err := EvaluateCounts(d, counts("270.01", "49.99", "80.00"))
	require.NoError(t, err)
	assert.False(t, discrepant)
	for _, r := range results {
		assert.False(t, r.Discrepant, "instrument %s", r.Instrument)
	}

	results, discrepant, err = EvaluateCounts(d, counts("270.02", "50.00", "80.00"))
	require.NoError(t, err)
	assert.True(t, discrepant)
	assert.True(t, results[0].Discrepant)
	assert.Equal(t, "0.02", money.Format(results[0].Difference))
}

func TestEvaluateCountsSignedDifference(t *testing.T) {
	d := testDrawer()

	results, discrepant, err := EvaluateCounts(d, counts("260.00", "55.00", "80.00"))
	require.NoError(t, err)
	assert.True(t, discrepant)

	byInstrument := map[domain.Instrument]InstrumentResult{}
	for _, r := range results {
		byInstrument[r.Instrument] = r
	}
	assert.Equal(t, "-10.00", money.Format(byInstrument[domain.LocalCash].Difference))
	assert.Equal(t, "5.00", money.Format(byInstrument[domain.ForeignCash].Difference))
	assert.Equal(t, "0.00", money.Format(byInstrument[domain.MobilePayment].Difference))
}

func TestEvaluateCountsRequiresAllInstruments(t *testing.T) {
	d := testDrawer()

	partial := counts("270.00", "50.00", "80.00")
	delete(partial, domain.MobilePayment)

	_, _, err := EvaluateCounts(d, partial)
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
	assert.Contains(t, err.Error(), "MOBILE_PAYMENT")
}
