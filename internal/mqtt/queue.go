package mqtt

import "github.com/rs/zerolog/log"

// offlineQueue holds publications made while the broker is unreachable.
// A retained message supersedes any queued message on the same topic, since
// the broker would only keep the last one anyway. Everything else is kept
// in order up to limit, after which the oldest is dropped.
// Callers synchronize.
type offlineQueue struct {
	msgs    []Message
	limit   int
	dropped uint64
	warned  bool
}

func newOfflineQueue(limit int) *offlineQueue {
	return &offlineQueue{limit: limit}
}

func (q *offlineQueue) push(msg Message) {
	if msg.Retained {
		kept := q.msgs[:0]
		for _, m := range q.msgs {
			if m.Topic != msg.Topic {
				kept = append(kept, m)
			}
		}
		q.msgs = kept
	}
	if len(q.msgs) >= q.limit {
		if !q.warned {
			log.Warn().Int("limit", q.limit).Msg("mqtt: offline queue full, dropping oldest")
			q.warned = true
		}
		q.msgs = q.msgs[1:]
		q.dropped++
	}
	q.msgs = append(q.msgs, msg)
}

// drain returns the queued messages oldest first and empties the queue.
func (q *offlineQueue) drain() []Message {
	if len(q.msgs) == 0 {
		return nil
	}
	out := q.msgs
	q.msgs = nil
	q.warned = false
	return out
}

func (q *offlineQueue) len() int { return len(q.msgs) }
