package query

import (
	"fmt"
	"strings"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
)

// Request is a validated retrieval request (immutable value object).
type Request struct {
	question string
	topK     int
	mode     Mode
	filter   Filter
}

// New validates and creates a Request. topK <= 0 means "use the configured
// default"; the service resolves it.
func New(question string, topK int, m Mode, f Filter) (Request, error) {
	if strings.TrimSpace(question) == "" {
		return Request{}, fmt.Errorf("%w: question is required", domain.ErrInvalidQuery)
	}
	switch m {
	case ModeSimple, ModeHybrid:
	default:
		return Request{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidQuery, m)
	}

	return Request{question: question, topK: topK, mode: m, filter: f}, nil
}

// Question returns the user's original question text.
func (r *Request) Question() string { return r.question }

// TopK returns the requested result count (<= 0 means default).
func (r *Request) TopK() int { return r.topK }

// Mode returns the retrieval mode.
func (r *Request) Mode() Mode { return r.mode }

// Filter returns the metadata constraints.
func (r *Request) Filter() Filter { return r.filter }
