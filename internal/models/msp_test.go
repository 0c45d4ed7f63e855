package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(seq int, at time.Time, lineType MSPLineType, materials ...Material) MSPLine {
	return MSPLine{
		ID:        "line-" + string(rune('0'+seq)),
		MSPID:     "msp-1",
		Seq:       seq,
		Type:      lineType,
		Time:      at,
		Materials: materials,
	}
}

func TestMSPLineTypeValid(t *testing.T) {
	assert.True(t, MSPLineRequestMaterial.Valid())
	assert.True(t, MSPLineSetAvailableMaterials.Valid())
	assert.True(t, MSPLineApproveMaterial.Valid())
	assert.False(t, MSPLineType("DELETE_MATERIAL").Valid())
}

func TestMSPLineTypeRequiresMaterials(t *testing.T) {
	assert.False(t, MSPLineRequestMaterial.RequiresMaterials())
	assert.True(t, MSPLineSetAvailableMaterials.RequiresMaterials())
	assert.True(t, MSPLineApproveMaterial.RequiresMaterials())
}

func TestSortMSPLinesSeqBreaksTies(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lines := []MSPLine{
		line(3, at, MSPLineApproveMaterial),
		line(1, at.Add(-time.Hour), MSPLineRequestMaterial),
		line(2, at, MSPLineSetAvailableMaterials),
	}
	SortMSPLines(lines)
	assert.Equal(t, []int{1, 2, 3}, []int{lines[0].Seq, lines[1].Seq, lines[2].Seq})
}

func TestMSPStageDerivation(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book := Material{ID: "m1", Kind: MaterialBook, Name: "Linear Algebra"}

	assert.Equal(t, StageAwaitingUpstream, MSPStageOf(nil))
	assert.False(t, MSPResolved(nil))
	assert.False(t, MSPNeedsAttention(nil))

	requested := []MSPLine{line(1, at, MSPLineRequestMaterial)}
	assert.Equal(t, StageAwaitingUpstream, MSPStageOf(requested))

	offered := append(requested, line(2, at.Add(time.Minute), MSPLineSetAvailableMaterials, book))
	assert.Equal(t, StageAwaitingApproval, MSPStageOf(offered))
	assert.True(t, MSPNeedsAttention(offered))
	assert.False(t, MSPResolved(offered))

	approved := append(offered, line(3, at.Add(2*time.Minute), MSPLineApproveMaterial, book))
	assert.Equal(t, StageApproved, MSPStageOf(approved))
	assert.True(t, MSPResolved(approved))
	assert.False(t, MSPNeedsAttention(approved))

	// A renewed request reopens the process.
	reopened := append(approved, line(4, at.Add(3*time.Minute), MSPLineRequestMaterial))
	assert.Equal(t, StageAwaitingUpstream, MSPStageOf(reopened))
	assert.False(t, MSPResolved(reopened))
}

func TestLastAvailableMaterials(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := Material{ID: "m1", Name: "Edition 1"}
	second := Material{ID: "m2", Name: "Edition 2"}

	lines := []MSPLine{
		line(1, at, MSPLineRequestMaterial),
		line(2, at.Add(time.Minute), MSPLineSetAvailableMaterials, first),
		line(3, at.Add(2*time.Minute), MSPLineRequestMaterial),
		line(4, at.Add(3*time.Minute), MSPLineSetAvailableMaterials, second),
		line(5, at.Add(4*time.Minute), MSPLineApproveMaterial, second),
	}

	got := LastAvailableMaterials(lines)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)

	assert.Empty(t, LastAvailableMaterials([]MSPLine{line(1, at, MSPLineRequestMaterial)}))
}

func TestMSPSummary(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, EmptyMSPSummary, MSPSummary(nil))

	lines := []MSPLine{
		line(1, at, MSPLineSetAvailableMaterials,
			Material{ID: "m1", Name: "Algorithms"},
			Material{ID: "m2", Name: "Data Structures"},
		),
	}
	assert.Equal(t, "Algorithms, Data Structures", MSPSummary(lines))

	bare := []MSPLine{line(1, at, MSPLineRequestMaterial)}
	assert.Equal(t, "", MSPSummary(bare))
}

func TestApprovedMaterials(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book := Material{ID: "m1", Kind: MaterialBook, Name: "Compilers"}

	open := []MSPLine{
		line(1, at, MSPLineRequestMaterial),
		line(2, at.Add(time.Minute), MSPLineSetAvailableMaterials, book),
	}
	assert.Empty(t, ApprovedMaterials(open))

	resolved := append(open, line(3, at.Add(2*time.Minute), MSPLineApproveMaterial, book))
	got := ApprovedMaterials(resolved)
	require.Len(t, got, 1)
	assert.Equal(t, "Compilers", got[0].Name)
}
