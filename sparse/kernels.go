package sparse

import (
	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
)

const (
	opCOOMatvec = "coo_matvec"
	opCSRMatvec = "csr_matvec"
)

// Entries lists the entry types every kernel is registered for.
var Entries = []space.EntryType{space.Float32, space.Float64}

func init() {
	reg := sched.DefaultRegistry()
	sched.PreregisterRanks(reg, opCOOMatvec, Entries, func(e space.EntryType) sched.TaskFunc {
		if e == space.Float32 {
			return cooMatvec[float32]
		}
		return cooMatvec[float64]
	})
	sched.PreregisterRanks(reg, opCSRMatvec, Entries, func(e space.EntryType) sched.TaskFunc {
		if e == space.Float32 {
			return csrMatvec[float32]
		}
		return csrMatvec[float64]
	})
}
