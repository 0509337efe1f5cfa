package storage

// Package storage keeps the notification history: one record per delivered
// game announcement, queryable most-recent-first for /history.
