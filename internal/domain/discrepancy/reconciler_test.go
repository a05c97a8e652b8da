package discrepancy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

func amt(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestReconcile_RecordedHigherIsNotADiscrepancy(t *testing.T) {
	r := NewReconciler()
	out := r.Reconcile(FieldMap{CurrentBidAmount: amt("50000")}, FieldMap{CurrentBidAmount: amt("60000")})
	assert.Empty(t, out)
}

func TestReconcile_ExtractedHigherIsADiscrepancy(t *testing.T) {
	r := NewReconciler()
	out := r.Reconcile(FieldMap{CurrentBidAmount: amt("60000")}, FieldMap{CurrentBidAmount: amt("50000")})

	require.Len(t, out, 1)
	rec := out[0]
	assert.Equal(t, FieldCurrentBidAmount, rec.Field)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "50000.00", rec.RecordedValue)
	assert.Equal(t, "60000.00", rec.ExtractedValue)
	assert.Nil(t, rec.ResolvedAt)
	assert.Nil(t, rec.ResolvedBy)
	assert.NoError(t, rec.Validate())
}

func TestReconcile_NumericTolerance(t *testing.T) {
	r := NewReconciler()
	tests := []struct {
		name      string
		extracted string
		recorded  string
		want      int
	}{
		{"equal", "105000.00", "105000", 0},
		{"within tolerance", "105000.01", "105000.00", 0},
		{"just over tolerance", "105000.02", "105000.00", 1},
		{"recorded far higher", "1", "999999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Reconcile(FieldMap{MinimumNextBid: amt(tt.extracted)}, FieldMap{MinimumNextBid: amt(tt.recorded)})
			assert.Len(t, out, tt.want)
		})
	}

	assert.Empty(t, r.Reconcile(FieldMap{CurrentBidAmount: amt("5")}, FieldMap{}), "missing recorded amount")
	assert.Empty(t, r.Reconcile(FieldMap{}, FieldMap{CurrentBidAmount: amt("5")}), "missing extracted amount")

	loose := NewReconciler(WithTolerance(decimal.NewFromInt(100)))
	assert.Empty(t, loose.Reconcile(FieldMap{CurrentBidAmount: amt("50050")}, FieldMap{CurrentBidAmount: amt("50000")}))
	assert.True(t, NewReconciler(WithTolerance(decimal.NewFromInt(-1))).Tolerance().Equal(DefaultTolerance))
}

func TestReconcile_Asymmetry(t *testing.T) {
	r := NewReconciler()
	for recorded := int64(1000); recorded <= 200000; recorded += 7919 {
		for _, delta := range []int64{1, 50, 5000} {
			extracted := decimal.NewFromInt(recorded - delta)
			rec := decimal.NewFromInt(recorded)
			out := r.Reconcile(
				FieldMap{CurrentBidAmount: &extracted, MinimumNextBid: &extracted},
				FieldMap{CurrentBidAmount: &rec, MinimumNextBid: &rec},
			)
			assert.Empty(t, out)
		}
	}
}

func TestReconcile_Address(t *testing.T) {
	r := NewReconciler()

	assert.Empty(t, r.Reconcile(FieldMap{PropertyAddress: "123  MAIN st"}, FieldMap{PropertyAddress: "123 Main St"}))
	assert.Empty(t, r.Reconcile(FieldMap{PropertyAddress: "123 Main St"}, FieldMap{}))
	assert.Empty(t, r.Reconcile(FieldMap{}, FieldMap{PropertyAddress: "123 Main St"}))

	out := r.Reconcile(FieldMap{PropertyAddress: "125 Main St"}, FieldMap{PropertyAddress: "123 Main St"})
	require.Len(t, out, 1)
	assert.Equal(t, FieldPropertyAddress, out[0].Field)
	assert.Equal(t, "123 Main St", out[0].RecordedValue)
	assert.Equal(t, "125 Main St", out[0].ExtractedValue)
}

func TestReconcile_Defendants(t *testing.T) {
	r := NewReconciler()

	t.Run("omission is a discrepancy", func(t *testing.T) {
		out := r.Reconcile(FieldMap{Defendants: []string{"Jane Doe"}}, FieldMap{})
		require.Len(t, out, 1)
		assert.Equal(t, FieldDefendantName, out[0].Field)
		assert.Equal(t, "", out[0].RecordedValue)
		assert.Equal(t, "Jane Doe", out[0].ExtractedValue)
	})

	t.Run("normalized match", func(t *testing.T) {
		out := r.Reconcile(FieldMap{Defendants: []string{"JANE   doe"}}, FieldMap{Defendants: []string{"John Doe", "Jane Doe"}})
		assert.Empty(t, out)
	})

	t.Run("unknown name", func(t *testing.T) {
		out := r.Reconcile(FieldMap{Defendants: []string{"Richard Roe", "richard roe"}}, FieldMap{Defendants: []string{"John Doe", "Jane Doe"}})
		require.Len(t, out, 1)
		assert.Equal(t, "John Doe; Jane Doe", out[0].RecordedValue)
	})

	t.Run("nothing extracted", func(t *testing.T) {
		assert.Empty(t, r.Reconcile(FieldMap{Defendants: []string{" "}}, FieldMap{Defendants: []string{"John Doe"}}))
	})
}

func TestReconcile_FieldOrderAndPurity(t *testing.T) {
	r := NewReconciler()
	extracted := FieldMap{
		PropertyAddress:  "9 Elm Rd",
		CurrentBidAmount: amt("70000"),
		MinimumNextBid:   amt("73500"),
		Defendants:       []string{"Jane Doe"},
	}
	recorded := FieldMap{
		PropertyAddress:  "7 Elm Rd",
		CurrentBidAmount: amt("60000"),
		MinimumNextBid:   amt("63000"),
	}
	first := r.Reconcile(extracted, recorded)
	second := r.Reconcile(extracted, recorded)

	require.Len(t, first, 4)
	assert.Equal(t, first, second)
	assert.Equal(t, []Field{FieldPropertyAddress, FieldCurrentBidAmount, FieldMinimumNextBid, FieldDefendantName},
		[]Field{first[0].Field, first[1].Field, first[2].Field, first[3].Field})
	assert.True(t, recorded.CurrentBidAmount.Equal(decimal.NewFromInt(60000)))
}

func TestRecord_Validate(t *testing.T) {
	now := time.Now()
	reviewer := "analyst@example.com"
	blank := " "

	assert.NoError(t, Record{Field: FieldPropertyAddress, Status: StatusPending}.Validate())
	assert.Error(t, Record{Field: FieldPropertyAddress, Status: StatusPending, ResolvedAt: &now}.Validate())
	assert.NoError(t, Record{Field: FieldPropertyAddress, Status: StatusAccepted, ResolvedAt: &now, ResolvedBy: &reviewer}.Validate())
	assert.Error(t, Record{Field: FieldPropertyAddress, Status: StatusRejected, ResolvedAt: &now}.Validate())
	assert.Error(t, Record{Field: FieldPropertyAddress, Status: StatusRejected, ResolvedAt: &now, ResolvedBy: &blank}.Validate())
	assert.Error(t, Record{Field: "zip", Status: StatusPending}.Validate())
	assert.Error(t, Record{Field: FieldPropertyAddress, Status: "open"}.Validate())
}

func TestDedup(t *testing.T) {
	existing := []Record{
		{Field: FieldCurrentBidAmount, ExtractedValue: "60000.00", Status: StatusRejected},
	}
	candidates := []Record{
		{Field: FieldCurrentBidAmount, ExtractedValue: "60000.00", Status: StatusPending},
		{Field: FieldDefendantName, ExtractedValue: "Jane Doe", Status: StatusPending},
		{Field: FieldDefendantName, ExtractedValue: "JANE DOE", Status: StatusPending},
	}
	out := Dedup(candidates, existing)
	require.Len(t, out, 1)
	assert.Equal(t, FieldDefendantName, out[0].Field)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$105,000.00", "105000"},
		{"USD 5000", "5000"},
		{" 42.5 ", "42.5"},
		{"-10", "-10"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, tt.in)
		require.NotNil(t, got)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(*got), tt.in)
	}

	got, err := ParseAmount("   ")
	assert.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"12O,000", "N/A", "$", "1.2.3", "5-0"} {
		_, err := ParseAmount(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput), bad)
	}
}

func TestRawFieldMap_Parse(t *testing.T) {
	fm, bad := RawFieldMap{
		PropertyAddress:  " 123 Main St ",
		CurrentBidAmount: "$60,000",
		MinimumNextBid:   "sixty three thousand",
		Defendants:       []string{"Jane Doe", "  "},
	}.Parse()

	assert.Equal(t, "123 Main St", fm.PropertyAddress)
	require.NotNil(t, fm.CurrentBidAmount)
	assert.True(t, fm.CurrentBidAmount.Equal(decimal.NewFromInt(60000)))
	assert.Nil(t, fm.MinimumNextBid)
	assert.Equal(t, []string{"Jane Doe"}, fm.Defendants)
	require.Len(t, bad, 1)
	assert.Equal(t, FieldMinimumNextBid, bad[0].Field)
}
