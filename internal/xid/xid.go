package xid

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed, time-ordered identifier such as "sale-0190f3c2-...".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), uuid.NewString())
	}
	return prefix + "-" + id.String()
}

const receiptPrefix = "RCP"

// ReceiptSequence hands out receipt numbers derived from the creation time
// in milliseconds. Numbers are strictly increasing within one sequence even
// when two sales share a millisecond or the wall clock steps back.
type ReceiptSequence struct {
	mu   sync.Mutex
	last int64
}

func (r *ReceiptSequence) Next(at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := at.UnixMilli()
	if ms <= r.last {
		ms = r.last + 1
	}
	r.last = ms
	return receiptPrefix + strconv.FormatInt(ms, 10)
}

// Observe raises the sequence floor to an already issued receipt number.
// Values that are not receipt numbers are ignored.
func (r *ReceiptSequence) Observe(receipt string) {
	if !strings.HasPrefix(receipt, receiptPrefix) {
		return
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(receipt, receiptPrefix), 10, 64)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.last {
		r.last = n
	}
}
