package index

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

// Partial is the private term map built by one worker over a contiguous
// chunk of the batch. Document ids are local to the chunk and start at 0.
type Partial struct {
	docs    []catalog.Product
	terms   map[Field]map[string]PostingList
	tokens  map[Field]int64
	skipped int
}

func NewPartial() *Partial {
	p := &Partial{
		terms:  make(map[Field]map[string]PostingList, len(Fields)),
		tokens: make(map[Field]int64, len(Fields)),
	}
	for _, f := range Fields {
		p.terms[f] = make(map[string]PostingList)
	}
	return p
}

// Add appends a document and returns its chunk-local id.
func (p *Partial) Add(product catalog.Product, fields FieldTokens) uint32 {
	docID := uint32(len(p.docs))
	p.docs = append(p.docs, product)

	for _, field := range Fields {
		tokens := fields[field]
		if len(tokens) == 0 {
			continue
		}
		termData := make(map[string]*Posting)
		order := make([]string, 0, len(tokens))
		for _, token := range tokens {
			posting, exists := termData[token.Term]
			if !exists {
				posting = &Posting{
					DocID:     docID,
					Positions: make([]int, 0, 2),
				}
				termData[token.Term] = posting
				order = append(order, token.Term)
			}
			posting.Frequency++
			posting.Positions = append(posting.Positions, token.Position)
		}
		dict := p.terms[field]
		for _, term := range order {
			dict[term] = append(dict[term], *termData[term])
		}
		p.tokens[field] += int64(len(tokens))
	}
	return docID
}

// Skip records a record that the ingestor rejected.
func (p *Partial) Skip() {
	p.skipped++
}

func (p *Partial) DocCount() int {
	return len(p.docs)
}

func (p *Partial) Skipped() int {
	return p.skipped
}

// MergeOptions bounds the merge step.
type MergeOptions struct {
	// MaxVocabularySize caps the distinct terms of any field; zero disables it.
	MaxVocabularySize int
}

// Merged is the output of Merge: the sealed dictionaries and stored fields
// of a generation that has not yet been published.
type Merged struct {
	Dictionaries map[Field]*Dictionary
	Documents    []catalog.Product
	Skipped      int
}

// Merge combines partials, in order, into global dictionaries. Global ids are
// assigned by offsetting each partial's local ids by the number of documents
// in the partials before it, so the result is independent of how the
// partials were scheduled. Merge is single-threaded.
func Merge(ctx context.Context, partials []*Partial, opts MergeOptions) (*Merged, error) {
	total := 0
	skipped := 0
	for _, p := range partials {
		total += p.DocCount()
		skipped += p.Skipped()
	}
	out := &Merged{
		Dictionaries: make(map[Field]*Dictionary, len(Fields)),
		Documents:    make([]catalog.Product, 0, total),
		Skipped:      skipped,
	}
	for _, f := range Fields {
		out.Dictionaries[f] = newDictionary(f)
	}

	var offset uint32
	for i, p := range partials {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, field := range Fields {
			dict := out.Dictionaries[field]
			for term, postings := range p.terms[field] {
				info, exists := dict.terms[term]
				if !exists {
					if opts.MaxVocabularySize > 0 && len(dict.terms) >= opts.MaxVocabularySize {
						return nil, fmt.Errorf("%w: field %s exceeds %d distinct terms",
							apperrors.ErrBuildMerge, field, opts.MaxVocabularySize)
					}
					info = &termInfo{postings: make(PostingList, 0, len(postings))}
					dict.terms[term] = info
				}
				for _, posting := range postings {
					posting.DocID += offset
					if n := len(info.postings); n > 0 && info.postings[n-1].DocID >= posting.DocID {
						return nil, fmt.Errorf("%w: postings for %s:%q out of order in partial %d",
							apperrors.ErrBuildMerge, field, term, i)
					}
					info.postings = append(info.postings, posting)
				}
			}
			dict.tokens += p.tokens[field]
		}
		out.Documents = append(out.Documents, p.docs...)
		offset += uint32(p.DocCount())
	}

	for _, field := range Fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Dictionaries[field].seal()
	}
	return out, nil
}
