package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type generatorFake struct {
	pingErr error
	panics  bool
}

func (f *generatorFake) Generate(context.Context, domain.GenerationRequest) (string, error) {
	return "", nil
}

func (f *generatorFake) Model() string { return "fake" }

func (f *generatorFake) Ping(context.Context) error {
	if f.panics {
		panic("boom")
	}
	return f.pingErr
}

func TestHealthAllUp(t *testing.T) {
	uc := NewHealthUseCase(newRepoFake(), newIndexFake(), &generatorFake{}, 0)
	report := uc.Check(context.Background())
	if !report.OK || !report.DB.OK || !report.VectorIndex.OK || !report.LLM.OK {
		t.Fatalf("expected healthy report, got %+v", report)
	}
}

func TestHealthIsolatesFailures(t *testing.T) {
	uc := NewHealthUseCase(newRepoFake(), newIndexFake(), &generatorFake{pingErr: errors.New("model missing")}, 0)
	report := uc.Check(context.Background())
	if report.OK || report.LLM.OK || report.LLM.Detail != "model missing" {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.DB.OK || !report.VectorIndex.OK {
		t.Fatalf("other components must stay healthy: %+v", report)
	}
}

func TestHealthSurvivesPanickingProbe(t *testing.T) {
	uc := NewHealthUseCase(newRepoFake(), newIndexFake(), &generatorFake{panics: true}, 0)
	report := uc.Check(context.Background())
	if report.OK || report.LLM.OK {
		t.Fatalf("expected llm unavailable, got %+v", report)
	}
}
