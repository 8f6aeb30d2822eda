package twophase

// Suffixes appended to the primary path to derive the sibling files.
const (
	// BackupSuffix marks the previous committed version.
	BackupSuffix = ".bak"

	// TempSuffix marks the in-flight write of the current session.
	TempSuffix = ".tmp"

	// ProbeSuffix marks the transient writability probe. A probe file
	// never outlives the Open call that created it.
	ProbeSuffix = ".prb"
)

// Paths holds the sibling paths derived from one primary path.
//
// At most one of Backup/Temp is ever "in use" as the working copy at a
// time, and Probe exists only transiently while [Open] probes the caller's
// configuration.
type Paths struct {
	Primary string
	Backup  string
	Temp    string
	Probe   string
}

// DerivePaths deterministically derives the backup, temporary and probe
// paths for the given primary path.
func DerivePaths(primary string) Paths {
	return Paths{
		Primary: primary,
		Backup:  primary + BackupSuffix,
		Temp:    primary + TempSuffix,
		Probe:   primary + ProbeSuffix,
	}
}
