package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

var (
	partnerField = models.FieldDescriptor{
		FieldID: 101, FieldName: "partner_id", FieldType: models.FieldTypeManyToOne,
		Stored: true, TargetModel: "res.partner", TargetModelID: 20,
	}
	tagsField = models.FieldDescriptor{
		FieldID: 104, FieldName: "y_ids", FieldType: models.FieldTypeManyToMany,
		Stored: true, TargetModel: "model.y", TargetModelID: 60,
	}
)

func TestExtractFkDependencies_ManyToOne(t *testing.T) {
	records := []models.Record{
		{"id": 1, "partner_id": []any{7, "Acme"}},
		{"id": 2, "partner_id": false},
		{"id": 3, "partner_id": 7},
		{"id": 4, "partner_id": nil},
	}

	deps := ExtractFkDependencies(records, []models.FieldDescriptor{partnerField})

	require.Len(t, deps, 1)
	assert.Equal(t, "partner_id", deps[0].Field)
	assert.Equal(t, []int64{7}, deps[0].UniqueIDs)
	assert.Equal(t, 2, deps[0].TotalReferences)
	assert.Equal(t, "res.partner", deps[0].TargetModel)
	assert.Equal(t, int64(20), deps[0].TargetModelID)
}

func TestExtractFkDependencies_ManyToMany(t *testing.T) {
	records := []models.Record{
		{"id": 1, "y_ids": []any{50, 51, 52}},
		{"id": 2, "y_ids": []any{51, 52}},
	}

	deps := ExtractFkDependencies(records, []models.FieldDescriptor{tagsField})

	require.Len(t, deps, 1)
	assert.Equal(t, []int64{50, 51, 52}, deps[0].UniqueIDs)
	assert.Equal(t, 5, deps[0].TotalReferences)
}

func TestExtractFkDependencies_SkipsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		field   models.FieldDescriptor
		values  []any
		wantIDs []int64
		wantRef int
	}{
		{
			name:    "non-positive and non-numeric scalars",
			field:   partnerField,
			values:  []any{0, -3, "7", 1.5, true, []any{}, []any{9, "Nine"}},
			wantIDs: []int64{9},
			wantRef: 1,
		},
		{
			name:    "array entries are filtered individually",
			field:   tagsField,
			values:  []any{[]any{0, -1, "x", 4, 4.0, nil}, false, nil},
			wantIDs: []int64{4},
			wantRef: 2,
		},
		{
			name:    "json numbers as float64",
			field:   partnerField,
			values:  []any{float64(12), []any{float64(3), "Three"}},
			wantIDs: []int64{3, 12},
			wantRef: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]models.Record, len(tt.values))
			for i, v := range tt.values {
				records[i] = models.Record{"id": i + 1, tt.field.FieldName: v}
			}

			deps := ExtractFkDependencies(records, []models.FieldDescriptor{tt.field})

			require.Len(t, deps, 1)
			assert.Equal(t, tt.wantIDs, deps[0].UniqueIDs)
			assert.Equal(t, tt.wantRef, deps[0].TotalReferences)
		})
	}
}

func TestExtractFkDependencies_NoEntryWithoutReferences(t *testing.T) {
	records := []models.Record{
		{"id": 1, "partner_id": false, "y_ids": []any{}},
		{"id": 2},
	}

	deps := ExtractFkDependencies(records, []models.FieldDescriptor{partnerField, tagsField})
	assert.Empty(t, deps)

	assert.Empty(t, ExtractFkDependencies(nil, []models.FieldDescriptor{partnerField}))
}

func TestExtractFkDependencies_FollowsFieldOrder(t *testing.T) {
	records := []models.Record{{"id": 1, "partner_id": 3, "y_ids": []any{8}}}

	deps := ExtractFkDependencies(records, []models.FieldDescriptor{tagsField, partnerField})

	require.Len(t, deps, 2)
	assert.Equal(t, "y_ids", deps[0].Field)
	assert.Equal(t, "partner_id", deps[1].Field)
}

func TestFKRefs(t *testing.T) {
	record := models.Record{
		"id":         1,
		"partner_id": []any{7, "Acme"},
		"y_ids":      []any{50, 0, 51},
	}

	refs := FKRefs(record, []models.FieldDescriptor{partnerField, tagsField})

	assert.Equal(t, "00000002-0020-0000-0000-000000000007", refs["partner_id"])
	assert.Equal(t, []string{
		"00000002-0060-0000-0000-000000000050",
		"00000002-0060-0000-0000-000000000051",
	}, refs["y_ids"])
}

func TestFKRefs_OmitsAbsent(t *testing.T) {
	refs := FKRefs(models.Record{"id": 1, "partner_id": false, "y_ids": []any{}},
		[]models.FieldDescriptor{partnerField, tagsField})
	assert.Empty(t, refs)

	// Ids beyond the identifier range cannot be addressed.
	refs = FKRefs(models.Record{"partner_id": int64(1_000_000_000_000)}, []models.FieldDescriptor{partnerField})
	assert.Empty(t, refs)
}
