// Package hierarchy implements the read side of the audit trail: it regroups
// flat audit records, from any source and in any order, into the nested
// transaction → entity → property view used for display.
//
// Both operations are pure functions over their input. They never mutate the
// supplied records, perform no I/O, and are safe to call concurrently over
// shared read-only slices.
package hierarchy

import (
	"sort"
	"time"

	"chronicle/pkg/audit"
)

// PropertyChange is one recorded before/after value pair of an entity.
// PreviousValue is absent for properties of newly created entities.
type PropertyChange struct {
	PropertyName  string  `json:"property_name"`
	PreviousValue *string `json:"previous_value,omitempty"`
	CurrentValue  *string `json:"current_value,omitempty"`
}

// EntityGroup is one entity touched by a transaction, with its property
// changes. UnmodifiedRoot rows never surface here.
type EntityGroup struct {
	TypeCode          audit.TypeCode   `json:"type_code"`
	EntityType        string           `json:"entity_type"`
	EntityUID         string           `json:"entity_uid"`
	EntityDescription string           `json:"entity_description"`
	Properties        []PropertyChange `json:"properties,omitempty"`
}

// TransactionGroup is one logical commit: the shared header plus every
// entity it changed.
type TransactionGroup struct {
	CorrelationUID string        `json:"correlation_uid"`
	Subject        string        `json:"subject"`
	UserName       string        `json:"user_name"`
	OccurredAt     time.Time     `json:"occurred_at"`
	Entities       []EntityGroup `json:"entities"`
}

// ToHierarchy groups the supplied records into transactions, newest first.
//
// Records are partitioned by CorrelationUID; the first record of a partition
// supplies the transaction header, which all records of a commit share by
// construction. Only Created, Updated and Deleted rows become entity groups;
// each picks up the Detail rows of its partition that match its EntityUID
// and carry a property name. Orphaned Detail rows and UnmodifiedRoot rows
// are dropped. Empty input yields an empty result.
func ToHierarchy(records []audit.Record) []TransactionGroup {
	groups := make([]TransactionGroup, 0, 8)
	if len(records) == 0 {
		return groups
	}

	partitions := make(map[string][]audit.Record)
	var order []string
	for _, r := range records {
		if _, seen := partitions[r.CorrelationUID]; !seen {
			order = append(order, r.CorrelationUID)
		}
		partitions[r.CorrelationUID] = append(partitions[r.CorrelationUID], r)
	}

	for _, correlationUID := range order {
		partition := partitions[correlationUID]
		header := partition[0]

		group := TransactionGroup{
			CorrelationUID: header.CorrelationUID,
			Subject:        header.Subject,
			UserName:       header.UserName,
			OccurredAt:     header.OccurredAt,
			Entities:       make([]EntityGroup, 0, len(partition)),
		}

		for _, r := range partition {
			switch r.TypeCode {
			case audit.TypeCreated, audit.TypeUpdated, audit.TypeDeleted:
			default:
				continue
			}
			group.Entities = append(group.Entities, EntityGroup{
				TypeCode:          r.TypeCode,
				EntityType:        r.EntityType,
				EntityUID:         r.EntityUID,
				EntityDescription: r.EntityDescription,
				Properties:        propertiesFor(partition, r.EntityUID),
			})
		}

		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].OccurredAt.After(groups[j].OccurredAt)
	})
	return groups
}

// ToHierarchyForEntity restricts the input to correlations in which
// entityUID appears in a non-Detail record, then groups as ToHierarchy does.
//
// UnmodifiedRoot rows participate here as lookup keys only: a commit that
// touched the entity's aggregate purely through children is found, but the
// rendered entity list still surfaces the actual changes, not the root
// marker. Detail rows alone never qualify a correlation. An unknown UID
// yields an empty result.
func ToHierarchyForEntity(records []audit.Record, entityUID string) []TransactionGroup {
	qualified := make(map[string]struct{})
	for _, r := range records {
		if r.TypeCode != audit.TypeDetail && r.EntityUID == entityUID {
			qualified[r.CorrelationUID] = struct{}{}
		}
	}
	if len(qualified) == 0 {
		return []TransactionGroup{}
	}

	scoped := make([]audit.Record, 0, len(records))
	for _, r := range records {
		if _, ok := qualified[r.CorrelationUID]; ok {
			scoped = append(scoped, r)
		}
	}
	return ToHierarchy(scoped)
}

func propertiesFor(partition []audit.Record, entityUID string) []PropertyChange {
	var properties []PropertyChange
	for _, r := range partition {
		if !r.IsDetail() || r.EntityUID != entityUID {
			continue
		}
		properties = append(properties, PropertyChange{
			PropertyName:  r.PropertyName,
			PreviousValue: r.PreviousValue,
			CurrentValue:  r.CurrentValue,
		})
	}
	return properties
}
