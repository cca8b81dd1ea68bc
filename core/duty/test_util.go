package duty

import (
	"math/rand"

	"github.com/trezcool/trafikkvakt/core"
)

// NewServiceMock returns a Service whose auto-fill shuffle is seeded, so fills are reproducible.
func NewServiceMock(repo Repository, events Broadcaster, logger core.Logger, seed int64) *Service {
	svc := NewService(repo, events, logger)
	svc.shuffle = rand.New(rand.NewSource(seed)).Shuffle
	return svc
}
