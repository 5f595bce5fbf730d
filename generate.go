//go:generate gomarkdoc -e -f github -o README.md . --repository.url https://github.com/agentstation/enrollsync --repository.default-branch master --repository.path /

// Package enrollsync reconciles participant records from two flat-file
// exports against remote record stores. A run is an ordered list of stages:
// the feeds are loaded and joined, exact targets are upserted, pending
// procedure events are transcribed onto the ledger, and fuzzy targets
// receive membership flags while their pending events are settled.
package enrollsync
