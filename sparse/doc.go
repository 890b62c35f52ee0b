// Package sparse implements distributed sparse operators on top of package
// sched.
//
// An operator stores its nonzeros in a kernel region. Partitions of the
// kernel space are derived from partitions of the vectors it maps between
// (see Operator), and Matvec runs one task per destination color that folds
// its products into the destination with a sum reduction. Nonzeros whose
// row or column fall outside the shards a task holds are skipped.
//
// Two formats are provided: COO (row, col, entry per nonzero) and CSR
// (col, entry per nonzero plus a per-row range region).
package sparse
