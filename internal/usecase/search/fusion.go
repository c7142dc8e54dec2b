package search

import "github.com/kailas-cloud/stylesearch/internal/domain"

// fuse combines the available modality vectors into a single unit-norm query
// vector. With one modality present, that vector is renormalized and used
// alone. With both, the text weight depends on whether structured intent was
// detected: intent means the words carry more signal than the picture.
// With neither, fuse returns domain.ErrNoSearchInput.
func (s *Service) fuse(textVec, imageVec []float32, hasIntent bool) ([]float32, error) {
	switch {
	case textVec == nil && imageVec == nil:
		return nil, domain.ErrNoSearchInput
	case imageVec == nil:
		return domain.Normalize(textVec), nil
	case textVec == nil:
		return domain.Normalize(imageVec), nil
	}

	w := s.cfg.TextWeightPlain
	if hasIntent {
		w = s.cfg.TextWeightIntent
	}
	return domain.Blend(textVec, w, imageVec, 1-w), nil
}
