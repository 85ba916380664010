package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built software version.
	Version = AttestdSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// AttestdSemVer is the semantic version of attestd.
	// Must be a string because release scripts read this file.
	AttestdSemVer = "0.3.0"

	// TxProtocol versions the signed ledger transaction format and the
	// checks the review registry contract applies to it.
	TxProtocol Protocol = 1
	// SnapshotProtocol versions the encoding of review snapshots written
	// to the content store.
	SnapshotProtocol Protocol = 1
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

// Info describes the running software and the protocols it speaks.
type Info struct {
	Software string   `json:"software"`
	Tx       Protocol `json:"tx_protocol"`
	Snapshot Protocol `json:"snapshot_protocol"`
}

// Current returns the Info of this build.
func Current() Info {
	return Info{Software: Version, Tx: TxProtocol, Snapshot: SnapshotProtocol}
}
