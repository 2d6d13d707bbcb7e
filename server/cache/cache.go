// Package cache keeps the most recent report from each link peer.
package cache

import (
	"errors"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
)

// ReportStore is what the status API reads peer state from.
type ReportStore interface {
	Record(report models.Report)

	Get(peer string) (Entry, error)

	Snapshot() []Entry

	GetStats() *CacheStats

	Close() error
}

type CacheStats struct {
	Items     int   `json:"items"`
	Expired   int   `json:"expired"`
	MaxSize   int   `json:"max_size"`
	Updates   int64 `json:"updates"`
	Evictions int64 `json:"evictions"`
}

var ErrCacheMiss = errors.New("cache miss")
