// Package rio wraps single store operations. One RIO is one atomic
// unit of store access — get, put, delete, multi-get, prefix scan,
// write batch or range delete — and the unit of retry, latency
// accounting and fault injection.
package rio
