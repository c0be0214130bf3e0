package index

import "sort"

type Posting struct {
	DocID     uint32 `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p"`
}

// PostingList is always sorted by ascending DocID.
type PostingList []Posting

type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

func (pl PostingList) Find(docID uint32) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool {
		return pl[i].DocID >= docID
	})
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i], true
	}
	return Posting{}, false
}

func (pl PostingList) DocIDs() []uint32 {
	ids := make([]uint32, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}
