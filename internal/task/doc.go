// Package task implements the escrow task lifecycle.
//
// A creator locks funds under a named task, later submits one allocation
// splitting exactly that amount across recipients, and each recipient slot
// is claimed at most once. Every record lives in a Registry; the Service
// drives the three operations, talks to the Ledger, and emits events after
// each commit.
//
//	Created --SubmitAllocation--> Allocated --Claim (per slot)--> ...
//
// No transition reverses. A task may sit forever with unclaimed slots.
package task
