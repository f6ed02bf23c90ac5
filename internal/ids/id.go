package ids

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Provider issues new row identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// SequenceProvider hands out predictable identifiers; tests use it to assert ordering.
type SequenceProvider struct {
	Prefix string
	mu     sync.Mutex
	next   int
}

func (p *SequenceProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	prefix := p.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return prefix + "-" + strconv.Itoa(p.next), nil
}

