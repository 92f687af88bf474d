// Package classifier maps vendor action codes to change categories.
//
// Action codes are contract-stable vendor identifiers, so classification is
// exact matching against a static table: adding a new code is a data change,
// not a control-flow change. Codes absent from the table classify as Ignored.
package classifier

import "driftwatch/internal/watch/models"

// actionCategories is the source of truth for classification. The groups are
// disjoint by construction; ordering is a reading aid only.
var actionCategories = map[string]models.ChangeCategory{
	// Flow lifecycle
	"createdFlow":     models.CategoryFlow,
	"changedFlow":     models.CategoryFlow,
	"activatedFlow":   models.CategoryFlow,
	"deactivatedFlow": models.CategoryFlow,
	"deletedFlow":     models.CategoryFlow,

	// Permission sets and profiles
	"createdPermissionSet":    models.CategoryPermission,
	"changedPermissionSet":    models.CategoryPermission,
	"deletedPermissionSet":    models.CategoryPermission,
	"assignedPermissionSet":   models.CategoryPermission,
	"unassignedPermissionSet": models.CategoryPermission,
	"changedProfile":          models.CategoryPermission,

	// Custom objects and fields
	"createdCustomObject": models.CategoryObject,
	"changedCustomObject": models.CategoryObject,
	"deletedCustomObject": models.CategoryObject,
	"createdCustomField":  models.CategoryObject,
	"changedCustomField":  models.CategoryObject,
	"deletedCustomField":  models.CategoryObject,

	// Validation rules
	"createdValidationRule":     models.CategoryValidationRule,
	"changedValidationRule":     models.CategoryValidationRule,
	"activatedValidationRule":   models.CategoryValidationRule,
	"deactivatedValidationRule": models.CategoryValidationRule,
	"deletedValidationRule":     models.CategoryValidationRule,

	// Formula fields
	"createdFormulaField": models.CategoryFormulaField,
	"changedFormulaField": models.CategoryFormulaField,
	"deletedFormulaField": models.CategoryFormulaField,

	// Org-wide metadata movements
	"deployedChangeSet":  models.CategoryMetadata,
	"installedPackage":   models.CategoryMetadata,
	"uninstalledPackage": models.CategoryMetadata,
	"changedApexClass":   models.CategoryMetadata,
	"changedApexTrigger": models.CategoryMetadata,
}

// Classify returns the change category for a raw event. Pure and total:
// identical input always yields identical output, unknown action codes return
// CategoryIgnored, and no input returns an error.
func Classify(event models.RawEvent) models.ChangeCategory {
	if cat, ok := actionCategories[event.ActionCode]; ok {
		return cat
	}
	return models.CategoryIgnored
}
