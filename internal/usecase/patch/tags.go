package patch

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain"
)

// maxTags is the number of visual tags attached to a localized patch.
const maxTags = 3

// tagVocabulary lists the concepts a patch can be labeled with. Kept small
// on purpose: the labels feed match explanations, not filtering.
var tagVocabulary = []string{
	"shoe", "sneaker", "boot", "heel",
	"pant", "trouser", "chino",
	"shirt", "dress", "jacket",
	"watch", "pattern", "plain",
}

type tagEntry struct {
	label     string
	embedding []float32
}

// LoadTagVocabulary embeds every vocabulary word once at startup. Words
// whose embedding fails are dropped with a warning; tagging then works
// over the reduced vocabulary.
func (s *Service) LoadTagVocabulary(ctx context.Context) error {
	vocab := make([]tagEntry, 0, len(tagVocabulary))
	for _, label := range tagVocabulary {
		vec, err := s.texts.EmbedText(ctx, label)
		if err != nil {
			s.logger.Warn("Tag vocabulary embedding failed",
				zap.String("label", label), zap.Error(err))
			continue
		}
		vocab = append(vocab, tagEntry{label: label, embedding: vec})
	}
	if len(vocab) == 0 {
		return fmt.Errorf("no tag vocabulary entry could be embedded")
	}
	s.vocab = vocab
	s.logger.Info("Tag vocabulary loaded", zap.Int("size", len(vocab)))
	return nil
}

// tags returns the vocabulary labels closest to the patch embedding, best
// first. Ties keep vocabulary order.
func (s *Service) tags(embedding []float32) []string {
	if len(s.vocab) == 0 || len(embedding) == 0 {
		return nil
	}

	type scored struct {
		label string
		sim   float64
		order int
	}
	ranked := make([]scored, len(s.vocab))
	for i, entry := range s.vocab {
		ranked[i] = scored{
			label: entry.label,
			sim:   domain.Cosine(embedding, entry.embedding),
			order: i,
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].order < ranked[j].order
	})

	n := min(maxTags, len(ranked))
	out := make([]string, n)
	for i := range out {
		out[i] = ranked[i].label
	}
	return out
}
