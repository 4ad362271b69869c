package lift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarColumn(t *testing.T) {
	tests := []struct {
		path Path
		want string
	}{
		{Path{From: "v4.0", To: "v4.1", Matrix: "Plasma"}, "Plasma Scalar v4.0 5K to v4.1 7K"},
		{Path{From: "v4.1", To: "v5.0", Matrix: "Serum"}, "Serum Scalar v4.1 7K to v5.0 11K"},
		{Path{From: "v3", To: "v4.0", Matrix: "Plasma"}, "Plasma Scalar v3 to v4.0 5K"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.path.ScalarColumn())
	}
}

func TestNormalizeMatrix(t *testing.T) {
	assert.Equal(t, "Plasma", NormalizeMatrix("EDTA Plasma"))
	assert.Equal(t, "Plasma", NormalizeMatrix(" Plasma "))
	assert.Equal(t, "Serum", NormalizeMatrix("Serum"))
	assert.Equal(t, "", NormalizeMatrix(""))
}

func TestPathTable(t *testing.T) {
	table := PathTable{
		{From: "v4.0", To: "v4.1", Matrix: "Plasma"},
		{From: "v4.0", To: "v4.1", Matrix: "Serum"},
		{From: "v4.1", To: "v5.0", Matrix: "Plasma"},
	}

	assert.Equal(t, []string{"Plasma", "Serum"}, table.Matrices())
	assert.True(t, table.SupportsMatrix("Serum"))
	assert.False(t, table.SupportsMatrix("Urine"))
	assert.Len(t, table.From("v4.0", "Plasma"), 1)
	assert.Empty(t, table.From("v5.0", "Plasma"))

	p, ok := table.Find("v4.1", "v5.0", "Plasma")
	assert.True(t, ok)
	assert.Equal(t, "v4.1 -> v5.0 (Plasma)", p.String())
	_, ok = table.Find("v4.1", "v5.0", "Serum")
	assert.False(t, ok)

	assert.Equal(t, `from "v4.0" to "v4.1", from "v4.1" to "v5.0"`, table.describe())
	assert.Equal(t, `from "v4.0" to "v4.1"`, DefaultPaths().describe())
}
