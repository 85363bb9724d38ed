package escrow

// OpKind identifies an escrow operation
type OpKind int

const (
	OpAddMilestone OpKind = iota + 1
	OpSubmitProof
	OpVerifyMilestone
	OpReleasePayment
	OpEmergencyPause
	OpResumeContract
	OpUpdateVerifier
	OpTerminateContract
)

var opNames = map[OpKind]string{
	OpAddMilestone:      "addMilestone",
	OpSubmitProof:       "submitProof",
	OpVerifyMilestone:   "verifyMilestone",
	OpReleasePayment:    "releasePayment",
	OpEmergencyPause:    "emergencyPause",
	OpResumeContract:    "resumeContract",
	OpUpdateVerifier:    "updateVerifier",
	OpTerminateContract: "terminateContract",
}

// Name returns the canonical operation name used in events and logs
func (k OpKind) Name() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return "unknown"
}

// Operation is one requested escrow transition. Fields are interpreted per
// kind; unused fields are ignored.
type Operation struct {
	Kind        OpKind
	Index       uint64
	Amount      uint64
	DueDate     int64
	ProofHash   string
	Signature   []byte
	Message     []byte
	NewVerifier string
}

// HasMilestone reports whether the operation targets a specific milestone
func (op Operation) HasMilestone() bool {
	switch op.Kind {
	case OpAddMilestone, OpSubmitProof, OpVerifyMilestone, OpReleasePayment:
		return true
	}
	return false
}
