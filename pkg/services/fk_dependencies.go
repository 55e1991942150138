package services

import (
	"sort"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
)

// ExtractFkDependencies collects, per FK field, the distinct foreign ids a
// batch of records references. It is pure and never fails: absent or
// malformed values are skipped, not reported. Fields that reference nothing
// produce no entry. Entries follow the order of fkFields.
func ExtractFkDependencies(records []models.Record, fkFields []models.FieldDescriptor) []models.FkDependency {
	var deps []models.FkDependency

	for _, field := range fkFields {
		seen := make(map[int64]struct{})
		total := 0

		for _, record := range records {
			value := models.ResolveFKValue(field.FieldType, record[field.FieldName])
			total += len(value.IDs)
			for _, id := range value.IDs {
				seen[id] = struct{}{}
			}
		}

		if len(seen) == 0 {
			continue
		}

		deps = append(deps, models.FkDependency{
			Field:           field.FieldName,
			FieldID:         field.FieldID,
			FieldType:       field.FieldType,
			TargetModel:     field.TargetModel,
			TargetModelID:   field.TargetModelID,
			UniqueIDs:       sortedIDs(seen),
			TotalReferences: total,
		})
	}

	return deps
}

// FKRefs resolves a record's FK values into the DataPoint identifiers they
// point at: a string for many_to_one, a list for x2many. Absent values and
// ids outside the identifier range are left out.
func FKRefs(record models.Record, fkFields []models.FieldDescriptor) map[string]any {
	refs := make(map[string]any)
	for _, field := range fkFields {
		value := models.ResolveFKValue(field.FieldType, record[field.FieldName])
		switch value.Kind {
		case models.FKScalar:
			if id, err := pointid.Data(field.TargetModelID, value.IDs[0]); err == nil {
				refs[field.FieldName] = id
			}
		case models.FKArray:
			ids := make([]string, 0, len(value.IDs))
			for _, recordID := range value.IDs {
				if id, err := pointid.Data(field.TargetModelID, recordID); err == nil {
					ids = append(ids, id)
				}
			}
			if len(ids) > 0 {
				refs[field.FieldName] = ids
			}
		}
	}
	return refs
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
