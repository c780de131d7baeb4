package model

import "strings"

// Entity document fields written by the assembler and driver.
const (
	FieldTaskIDs          = "task_ids"
	FieldDeprecatedTasks  = "deprecated_tasks"
	FieldDeprecated       = "deprecated"
	FieldCalcTypes        = "calc_types"
	FieldRunTypes         = "run_types"
	FieldOrigins          = "origins"
	FieldWarnings         = "warnings"
	FieldCreatedAt        = "created_at"
	FieldSandboxPartition = "sandbox_partition"

	// FieldBuildTime stamps when a document was last written by a build.
	FieldBuildTime = "_bt"
	FieldBuildID   = "_build_id"
)

// Warnings attached to entity documents.
const (
	WarnLargeVolumeChange = "large volume change"
	WarnDeprecatedTasks   = "contains deprecated tasks"
)

// PartitionKey renders a sandbox cell as a stable key.
func PartitionKey(cell []string) string {
	if len(cell) == 0 {
		return DefaultSandbox
	}
	return strings.Join(cell, ",")
}
