package db

// StorageType selects the underlying record encoding for an FT index.
type StorageType string

// StorageHash indexes hash records.
const StorageHash StorageType = "HASH"

// IndexFieldType enumerates supported FT schema field kinds.
type IndexFieldType string

const (
	IndexFieldTag    IndexFieldType = "TAG"
	IndexFieldText   IndexFieldType = "TEXT"
	IndexFieldVector IndexFieldType = "VECTOR"
)

// VectorAlgo selects the KNN index algorithm.
type VectorAlgo string

const (
	VectorFlat VectorAlgo = "FLAT"
	VectorHNSW VectorAlgo = "HNSW"
)

// VectorDistance selects the distance metric.
type VectorDistance string

// DistanceCosine is the only metric the corpus uses; scores are converted to
// cosine similarity at the parsing boundary.
const DistanceCosine VectorDistance = "COSINE"

// IndexField describes one schema field of an FT index.
type IndexField struct {
	Name         string
	Type         IndexFieldType
	TagSeparator string

	// Vector options (Type == IndexFieldVector).
	VectorDim         int
	VectorAlgo        VectorAlgo
	VectorDistance    VectorDistance
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition describes an FT index to create.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}
