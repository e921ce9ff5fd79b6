package domain

// KeyPrefix namespaces all corpus keys in the store.
const KeyPrefix = "paperdex:"

// VectorConfig describes the embedding vector layout of the corpus.
type VectorConfig struct {
	Dimensions int
}

// DefaultVectorConfig returns the default vector layout (MiniLM-class models).
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{Dimensions: 384}
}
