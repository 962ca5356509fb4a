package shell

// Status classifies the privilege level of a live shell.
type Status int

const (
	StatusUnknown         Status = -1
	StatusNonRoot         Status = 0
	StatusRoot            Status = 1
	StatusRootMountMaster Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusNonRoot:
		return "non-root"
	case StatusRoot:
		return "root"
	case StatusRootMountMaster:
		return "root-mount-master"
	default:
		return "unknown"
	}
}

// IsRoot reports whether the shell runs as uid 0.
func (s Status) IsRoot() bool {
	return s >= StatusRoot
}
