// Package remote executes shell commands on a cluster.
//
// SSHExecutor connects to the cluster head node with golang.org/x/crypto/ssh,
// retrying the dial with exponential backoff. LocalExecutor runs commands on
// the invoking machine for client-mode tests. Both build the command line
// with BuildScript, which changes into the working directory and exports the
// request environment before running the command.
//
// A command that outlives its context is killed: the SSH executor signals
// the session and kills the recorded remote process tree, the local executor
// kills its process group.
package remote
