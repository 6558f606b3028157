package service

import (
	"testing"
	"time"

	"compliance-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(country, cost string) models.CostInput {
	return models.CostInput{
		Name:     "part",
		Category: models.CategoryRawMaterial,
		Country:  country,
		Cost:     decimal.RequireFromString(cost),
	}
}

func TestCalculateRVCEmptyLedger(t *testing.T) {
	block := CalculateRVC(nil, 60, time.Now())

	assert.False(t, block.Enabled)
	assert.Nil(t, block.RVC)
	assert.Nil(t, block.Qualifies)
	assert.Nil(t, block.Breakdown)
	assert.Nil(t, block.CalculatedAt)
}

func TestCalculateRVCZeroTotal(t *testing.T) {
	inputs := []models.CostInput{
		input(models.CountryCanada, "0"),
		input(models.CountryUSA, "0.00"),
	}

	block := CalculateRVC(inputs, 60, time.Now())

	assert.True(t, block.Enabled)
	assert.Nil(t, block.RVC)
	assert.Nil(t, block.Qualifies)
	require.NotNil(t, block.Breakdown)
	assert.True(t, block.Breakdown.TotalCost.IsZero())
	assert.NotNil(t, block.CalculatedAt)
}

func TestCalculateRVCMixedOrigins(t *testing.T) {
	inputs := []models.CostInput{
		input(models.CountryCanada, "95"),
		input(models.CountryUSA, "55"),
		input(models.CountryMexico, "30"),
		input("CHN", "10"),
		input("DEU", "5"),
	}

	block := CalculateRVC(inputs, 60, time.Now())

	require.NotNil(t, block.RVC)
	require.NotNil(t, block.Qualifies)
	assert.Equal(t, int64(92), *block.RVC) // 180/195 = 92.3%
	assert.True(t, *block.Qualifies)

	b := block.Breakdown
	require.NotNil(t, b)
	assert.Equal(t, int64(49), b.Canada) // 95/195 = 48.7%
	assert.Equal(t, int64(28), b.USA)    // 55/195 = 28.2%
	assert.Equal(t, int64(15), b.Mexico) // 30/195 = 15.4%
	assert.Equal(t, int64(8), b.Other)   // 15/195 = 7.7%
	assert.Equal(t, "195", b.TotalCost.String())
	assert.Equal(t, "180", b.QualifyingCost.String())
}

func TestCalculateRVCThresholdBoundary(t *testing.T) {
	tests := []struct {
		name       string
		qualifying string
		other      string
		wantRVC    int64
		qualifies  bool
	}{
		{"exactly at threshold", "60", "40", 60, true},
		{"just below threshold rounds up but fails", "59.50", "40.50", 60, false},
		{"just above threshold", "60.01", "39.99", 60, true},
		{"well below", "30", "70", 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := []models.CostInput{
				input(models.CountryCanada, tt.qualifying),
				input("CHN", tt.other),
			}

			block := CalculateRVC(inputs, 60, time.Now())

			require.NotNil(t, block.RVC)
			require.NotNil(t, block.Qualifies)
			assert.Equal(t, tt.wantRVC, *block.RVC)
			assert.Equal(t, tt.qualifies, *block.Qualifies)
		})
	}
}

func TestCalculateRVCMultipleInputsPerCountry(t *testing.T) {
	inputs := []models.CostInput{
		input(models.CountryUSA, "12"),
		input(models.CountryCanada, "8"),
		input(models.CountryCanada, "14"),
		input(models.CountryMexico, "4"),
		input("CHN", "2"),
	}

	block := CalculateRVC(inputs, 60, time.Now())

	require.NotNil(t, block.RVC)
	require.NotNil(t, block.Qualifies)
	assert.Equal(t, int64(95), *block.RVC) // 38/40
	assert.True(t, *block.Qualifies)

	b := block.Breakdown
	require.NotNil(t, b)
	assert.Equal(t, int64(55), b.Canada) // 22/40
	assert.Equal(t, int64(30), b.USA)    // 12/40
	assert.Equal(t, int64(10), b.Mexico) // 4/40
	assert.Equal(t, int64(5), b.Other)   // 2/40
}

func TestCalculateRVCBucketRoundingMayNotSumTo100(t *testing.T) {
	// three equal thirds each round to 33
	inputs := []models.CostInput{
		input(models.CountryCanada, "1"),
		input(models.CountryUSA, "1"),
		input(models.CountryMexico, "1"),
	}

	block := CalculateRVC(inputs, 60, time.Now())

	b := block.Breakdown
	require.NotNil(t, b)
	assert.Equal(t, int64(33), b.Canada)
	assert.Equal(t, int64(33), b.USA)
	assert.Equal(t, int64(33), b.Mexico)
	assert.Equal(t, int64(99), b.Canada+b.USA+b.Mexico+b.Other)

	// the verdict itself is exact regardless of bucket rounding
	require.NotNil(t, block.RVC)
	assert.Equal(t, int64(100), *block.RVC)
	assert.True(t, *block.Qualifies)
}

func TestCalculateRVCUnknownCountryBucketsToOther(t *testing.T) {
	inputs := []models.CostInput{
		input("JPN", "80"),
		input(models.CountryCanada, "20"),
	}

	block := CalculateRVC(inputs, 60, time.Now())

	require.NotNil(t, block.Qualifies)
	assert.False(t, *block.Qualifies)
	assert.Equal(t, int64(80), block.Breakdown.Other)
}

func TestCalculateRVCDeterministic(t *testing.T) {
	inputs := []models.CostInput{
		input(models.CountryCanada, "33.33"),
		input("CHN", "66.67"),
	}
	now := time.Now()

	first := CalculateRVC(inputs, 60, now)
	second := CalculateRVC(inputs, 60, now)

	assert.Equal(t, first, second)
}
