package index

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

type termInfo struct {
	postings PostingList
	docs     *roaring.Bitmap
}

// Dictionary maps the terms of one field to their postings. It is immutable
// once its generation has been published.
type Dictionary struct {
	field  Field
	terms  map[string]*termInfo
	tokens int64
}

func newDictionary(field Field) *Dictionary {
	return &Dictionary{
		field: field,
		terms: make(map[string]*termInfo),
	}
}

func (d *Dictionary) Field() Field {
	return d.field
}

func (d *Dictionary) Postings(term string) PostingList {
	if info, ok := d.terms[term]; ok {
		return info.postings
	}
	return nil
}

// Docs returns the set of documents containing term. The bitmap is shared;
// callers must Clone it before mutating.
func (d *Dictionary) Docs(term string) *roaring.Bitmap {
	if info, ok := d.terms[term]; ok {
		return info.docs
	}
	return nil
}

func (d *Dictionary) DocFreq(term string) int {
	if info, ok := d.terms[term]; ok {
		return len(info.postings)
	}
	return 0
}

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int {
	return len(d.terms)
}

// TokenCount returns the total number of indexed token occurrences.
func (d *Dictionary) TokenCount() int64 {
	return d.tokens
}

// Terms returns every term in lexical order.
func (d *Dictionary) Terms() []string {
	terms := make([]string, 0, len(d.terms))
	for term := range d.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Entries returns the dictionary contents in lexical term order.
func (d *Dictionary) Entries() []TermEntry {
	terms := d.Terms()
	entries := make([]TermEntry, 0, len(terms))
	for _, term := range terms {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: d.terms[term].postings,
		})
	}
	return entries
}

// DocFreqs returns term -> document frequency for every term.
func (d *Dictionary) DocFreqs() map[string]int {
	out := make(map[string]int, len(d.terms))
	for term, info := range d.terms {
		out[term] = len(info.postings)
	}
	return out
}

func (d *Dictionary) seal() {
	for _, info := range d.terms {
		docs := roaring.New()
		for _, p := range info.postings {
			docs.Add(p.DocID)
		}
		docs.RunOptimize()
		info.docs = docs
	}
}
