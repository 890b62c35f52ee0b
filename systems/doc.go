// Package systems builds small model problems for the solvers: negative
// Laplacians in COO and CSR form and matching right-hand sides.
package systems
