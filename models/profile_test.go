package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func epsSeries(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func TestCompanyFinancialProfile_WorkingCapital(t *testing.T) {
	p := CompanyFinancialProfile{CurrentAssets: nd("500"), CurrentLiabilities: nd("200")}

	wc := p.WorkingCapital()
	if !wc.Valid {
		t.Fatal("WorkingCapital should be valid")
	}
	if !wc.Decimal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("WorkingCapital = %v, want 300", wc.Decimal)
	}

	p.CurrentLiabilities = decimal.NullDecimal{}
	if p.WorkingCapital().Valid {
		t.Error("WorkingCapital should be invalid when liabilities are missing")
	}
}

func TestCompanyFinancialProfile_CurrentRatio(t *testing.T) {
	tests := []struct {
		name        string
		assets      decimal.NullDecimal
		liabilities decimal.NullDecimal
		wantValid   bool
		want        string
	}{
		{"normal", nd("500"), nd("200"), true, "2.5"},
		{"zero liabilities", nd("500"), nd("0"), false, ""},
		{"negative liabilities", nd("500"), nd("-1"), false, ""},
		{"missing assets", decimal.NullDecimal{}, nd("200"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CompanyFinancialProfile{CurrentAssets: tt.assets, CurrentLiabilities: tt.liabilities}
			got := p.CurrentRatio()
			if got.Valid != tt.wantValid {
				t.Fatalf("CurrentRatio().Valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if tt.wantValid && !got.Decimal.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("CurrentRatio() = %v, want %v", got.Decimal, tt.want)
			}
		})
	}
}

func TestCompanyFinancialProfile_DebtToEquity(t *testing.T) {
	p := CompanyFinancialProfile{TotalDebt: nd("300"), ShareholderEquity: nd("200")}
	got := p.DebtToEquity()
	if !got.Valid || !got.Decimal.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("DebtToEquity() = %v, want 1.5", got)
	}

	p.ShareholderEquity = nd("-50")
	if p.DebtToEquity().Valid {
		t.Error("DebtToEquity should be invalid for negative equity")
	}
}

func TestAverageEPS(t *testing.T) {
	eps := epsSeries("3", "2", "1", "1", "1", "1", "1", "0.5", "1", "1.5")

	recent := AverageEPS(eps, 0, 3)
	if !recent.Valid || !recent.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Errorf("recent average = %v, want 2", recent)
	}

	prior := AverageEPS(eps, 7, 10)
	if !prior.Valid || !prior.Decimal.Equal(decimal.NewFromInt(1)) {
		t.Errorf("prior average = %v, want 1", prior)
	}

	if AverageEPS(eps[:9], 7, 10).Valid {
		t.Error("average over a short window should be invalid")
	}
	if AverageEPS(eps, 3, 3).Valid {
		t.Error("empty window should be invalid")
	}
}

func TestCompanyFinancialProfile_DeriveEPSAverages(t *testing.T) {
	t.Run("derives from history", func(t *testing.T) {
		p := CompanyFinancialProfile{AnnualEPS: epsSeries("3", "2", "1", "1", "1", "1", "1", "0.5", "1", "1.5")}
		p.DeriveEPSAverages()

		if !p.RecentAvgEPS.Valid || !p.RecentAvgEPS.Decimal.Equal(decimal.NewFromInt(2)) {
			t.Errorf("RecentAvgEPS = %v, want 2", p.RecentAvgEPS)
		}
		if !p.PriorAvgEPS.Valid || !p.PriorAvgEPS.Decimal.Equal(decimal.NewFromInt(1)) {
			t.Errorf("PriorAvgEPS = %v, want 1", p.PriorAvgEPS)
		}
		if !p.TrailingAvgEPS.Valid || !p.TrailingAvgEPS.Decimal.Equal(p.RecentAvgEPS.Decimal) {
			t.Errorf("TrailingAvgEPS = %v, want %v", p.TrailingAvgEPS, p.RecentAvgEPS)
		}
	})

	t.Run("keeps supplied values", func(t *testing.T) {
		p := CompanyFinancialProfile{
			AnnualEPS:    epsSeries("3", "2", "1"),
			RecentAvgEPS: nd("9"),
		}
		p.DeriveEPSAverages()

		if !p.RecentAvgEPS.Decimal.Equal(decimal.NewFromInt(9)) {
			t.Errorf("RecentAvgEPS = %v, want 9", p.RecentAvgEPS.Decimal)
		}
		if p.PriorAvgEPS.Valid {
			t.Error("PriorAvgEPS should stay invalid with only 3 years of history")
		}
	})
}
