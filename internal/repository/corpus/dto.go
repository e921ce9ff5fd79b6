package corpus

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain/chunk"
)

// Hash field names of a chunk record, written by the ingestion process.
const (
	fieldContent     = "__content"
	fieldVector      = "__vector"
	fieldSource      = "source"
	fieldPage        = "page"
	fieldChunkIndex  = "chunk_index"
	fieldSection     = "section"
	fieldChemistries = "chemistries"
	fieldTopics      = "topics"
	fieldPaperType   = "paper_type"

	tagSeparator = ","
)

// returnFields lists everything QueryByVector asks the store for. The stored
// vector is deliberately absent: the KNN path never re-scores client-side.
var returnFields = []string{
	fieldContent, fieldSource, fieldPage, fieldChunkIndex,
	fieldSection, fieldChemistries, fieldTopics, fieldPaperType,
}

// chunkFromFields hydrates a Chunk from flat hash fields. Records missing
// identity or text are skipped (ingestion writes them atomically, so a
// partial record is garbage, not data).
func chunkFromFields(fields map[string]string) (chunk.Chunk, bool) {
	source := fields[fieldSource]
	text := fields[fieldContent]
	if source == "" || text == "" {
		return chunk.Chunk{}, false
	}

	page, err := strconv.Atoi(fields[fieldPage])
	if err != nil || page <= 0 {
		return chunk.Chunk{}, false
	}
	index, err := strconv.Atoi(fields[fieldChunkIndex])
	if err != nil || index < 0 {
		return chunk.Chunk{}, false
	}

	return chunk.Reconstruct(
		source, page, index, text,
		fields[fieldSection],
		splitTags(fields[fieldChemistries]),
		splitTags(fields[fieldTopics]),
		fields[fieldPaperType],
		bytesToVector(fields[fieldVector]),
	), true
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, tagSeparator)
	tags := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// bytesToVector deserializes a binary f32le string to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
