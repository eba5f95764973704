package queue

// DefaultKeyPrefix namespaces every key written by the queue.
const DefaultKeyPrefix = "mmm:"

type keys struct {
	prefix string
}

// pending holds task messages waiting for a worker: <prefix>queue:pending
func (k keys) pending() string { return k.prefix + "queue:pending" }

// processing holds task messages claimed by a worker: <prefix>queue:processing
func (k keys) processing() string { return k.prefix + "queue:processing" }

// job is the registry hash for one job: <prefix>job:<id>
func (k keys) job(id string) string { return k.prefix + "job:" + id }
