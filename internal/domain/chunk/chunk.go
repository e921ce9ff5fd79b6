package chunk

import (
	"fmt"
	"strings"
)

// DefaultSection is used when ingestion did not detect a section heading.
const DefaultSection = "Content"

// Chunk is the atomic retrievable unit: a piece of paper text tied to a
// document, page, and position. Immutable value object; (source, page, index)
// is unique within the corpus.
type Chunk struct {
	source      string
	page        int
	index       int
	text        string
	section     string
	chemistries []string
	topics      []string
	paperType   string
	vector      []float32
}

// New validates and creates a Chunk.
func New(source string, page, index int, text string) (Chunk, error) {
	if source == "" {
		return Chunk{}, fmt.Errorf("source document id is required")
	}
	if page <= 0 {
		return Chunk{}, fmt.Errorf("page must be positive, got %d", page)
	}
	if index < 0 {
		return Chunk{}, fmt.Errorf("chunk index must be non-negative, got %d", index)
	}
	if strings.TrimSpace(text) == "" {
		return Chunk{}, fmt.Errorf("text is required")
	}

	return Chunk{
		source:  source,
		page:    page,
		index:   index,
		text:    text,
		section: DefaultSection,
	}, nil
}

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(
	source string, page, index int, text, section string,
	chemistries, topics []string, paperType string, vector []float32,
) Chunk {
	if section == "" {
		section = DefaultSection
	}
	return Chunk{
		source:      source,
		page:        page,
		index:       index,
		text:        text,
		section:     section,
		chemistries: chemistries,
		topics:      topics,
		paperType:   paperType,
		vector:      vector,
	}
}

// Key returns the composite corpus identity "source:page:index".
func (c *Chunk) Key() string {
	return fmt.Sprintf("%s:%d:%d", c.source, c.page, c.index)
}

// Source returns the source document id (e.g. filename).
func (c *Chunk) Source() string { return c.source }

// Page returns the 1-based page number.
func (c *Chunk) Page() int { return c.page }

// Index returns the chunk position within the page.
func (c *Chunk) Index() int { return c.index }

// Text returns the chunk text.
func (c *Chunk) Text() string { return c.text }

// Section returns the section heading the chunk belongs to.
func (c *Chunk) Section() string { return c.section }

// Chemistries returns the chemistry tags.
func (c *Chunk) Chemistries() []string { return c.chemistries }

// Topics returns the topic tags.
func (c *Chunk) Topics() []string { return c.topics }

// PaperType returns the paper type tag.
func (c *Chunk) PaperType() string { return c.paperType }

// Vector returns the stored embedding vector, if ingested with one.
func (c *Chunk) Vector() []float32 { return c.vector }

// WithVector returns a copy with the given vector set.
func (c *Chunk) WithVector(v []float32) Chunk {
	out := *c
	out.vector = v
	return out
}
