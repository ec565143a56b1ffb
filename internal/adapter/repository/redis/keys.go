package redis

// keyspace namespaces every key this service writes, so one Redis can be
// shared with other tenants and flushed selectively.
type keyspace string

const (
	cacheKeys         keyspace = "pspledger:cache:"
	generationKeys    keyspace = "pspledger:cache-generation:"
	idempotencyKeys   keyspace = "pspledger:idempotency:"
	securityTokenKeys keyspace = "pspledger:security-token:"
)

func (k keyspace) key(id string) string {
	return string(k) + id
}

// pattern matches every key under k with SCAN/KEYS.
func (k keyspace) pattern() string {
	return string(k) + "*"
}
