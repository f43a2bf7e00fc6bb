// Package model contains the domain types shared by the orchestrator
// components: allocation records and their status machine, pending submit
// requests, match results, participant statistics, standings snapshots,
// scheduler job states and the error taxonomy surfaced to callers.
package model
