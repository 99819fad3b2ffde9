package app

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
)

// BatchResult est le résultat d'une requête d'un lot, dans l'ordre du lot.
type BatchResult struct {
	Request    domain.SearchRequest       `json:"request"`
	Candidates []domain.SubtitleCandidate `json:"candidates"`
	Error      string                     `json:"error,omitempty"`
	ErrorCode  string                     `json:"errorCode,omitempty"`
}

// SearchBatch lance les recherches en parallèle (au plus workers à la fois).
// L'échec d'une requête n'annule pas les autres; l'annulation de ctx, si.
func (s *SearchService) SearchBatch(ctx context.Context, reqs []domain.SearchRequest, workers int) ([]BatchResult, error) {
	if workers <= 0 {
		workers = domain.DefaultSettings().MaxBatchWorkers
	}
	results := make([]BatchResult, len(reqs))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for i, req := range reqs {
		p.Go(func(ctx context.Context) error {
			res := BatchResult{Request: req}
			cands, err := s.Search(ctx, req)
			if err != nil {
				res.Error = err.Error()
				res.ErrorCode = ErrorCode(err)
				if IsCanceled(err) {
					res.ErrorCode = "canceled"
				}
			} else {
				res.Candidates = cands
			}
			results[i] = res
			return nil
		})
	}
	_ = p.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
