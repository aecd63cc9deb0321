package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthUseCase struct {
	repo      ports.DocumentRepository
	index     ports.VectorIndex
	generator ports.Generator
	timeout   time.Duration
}

func NewHealthUseCase(repo ports.DocumentRepository, index ports.VectorIndex, generator ports.Generator, timeout time.Duration) *HealthUseCase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthUseCase{repo: repo, index: index, generator: generator, timeout: timeout}
}

// Check probes every collaborator concurrently. A failing or panicking probe only marks its
// own component unavailable.
func (uc *HealthUseCase) Check(ctx context.Context) domain.HealthReport {
	var (
		report domain.HealthReport
		wg     sync.WaitGroup
	)
	probes := []struct {
		target pinger
		out    *domain.HealthComponent
	}{
		{uc.repo, &report.DB},
		{uc.index, &report.VectorIndex},
		{uc.generator, &report.LLM},
	}
	for _, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*p.out = uc.probe(ctx, p.target)
		}()
	}
	wg.Wait()

	report.OK = report.DB.OK && report.VectorIndex.OK && report.LLM.OK
	return report
}

func (uc *HealthUseCase) probe(ctx context.Context, target pinger) (component domain.HealthComponent) {
	defer func() {
		if r := recover(); r != nil {
			component = domain.HealthComponent{OK: false, Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()
	if target == nil {
		return domain.HealthComponent{OK: false, Detail: "not configured"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	if err := target.Ping(probeCtx); err != nil {
		return domain.HealthComponent{OK: false, Detail: err.Error()}
	}
	return domain.HealthComponent{OK: true}
}
