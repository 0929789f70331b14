package models

import (
	"github.com/uptrace/bun"
)

// Counter is a named monotonically increasing sequence. The only write path
// is the counter package's increment-and-return; never derive a sequence by
// counting rows.
type Counter struct {
	bun.BaseModel `bun:"table:counters"`

	Key   string `bun:"key,pk" json:"key"`
	Value int64  `bun:"value,notnull" json:"value"`
}
