package database

// HNSW parameters for the in-memory candidate graph
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size. Queries that need a larger
	// pool than this fall back to the exact scan.
	HNSWEfSearch = 200

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after threshold filtering.
	HNSWSearchMultiplier = 3

	// HNSWDefaultMinSize is the vector count below which queries always scan.
	HNSWDefaultMinSize = 5000
)

// MaxListLimit caps page sizes of subject listings.
const MaxListLimit = 1000
