package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

// Reader gives read access to a snapshot file. Postings are loaded lazily;
// the dictionary is held in memory.
type Reader struct {
	file     *os.File
	filePath string
	header   SnapshotHeader
	sections map[index.Field]FieldSection
}

// OpenReader opens path and verifies its header, checksum and dictionary.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening snapshot file: %v", apperrors.ErrStorageIO, err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrStorageIO, path, err)
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := unmarshalHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid snapshot file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}
	bodyEnd := header.DocsOffset + header.DocsSize
	if header.DictOffset < int64(HeaderSize) || header.DocsOffset < header.DictOffset+header.DictSize ||
		bodyEnd+int64(FooterSize) != info.Size() {
		return nil, fmt.Errorf("snapshot layout does not match file size %d", info.Size())
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, bodyEnd); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[4:8]) != MagicBytes {
		return nil, fmt.Errorf("invalid snapshot footer")
	}
	crc := crc32.NewIEEE()
	if _, err := io.Copy(crc, io.NewSectionReader(f, int64(HeaderSize), bodyEnd-int64(HeaderSize))); err != nil {
		return nil, fmt.Errorf("checksumming snapshot: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc.Sum32() != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", crc.Sum32(), want)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	var sections []FieldSection
	if err := json.Unmarshal(dictBytes, &sections); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	byField := make(map[index.Field]FieldSection, len(sections))
	for _, s := range sections {
		byField[s.Field] = s
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		sections: byField,
	}, nil
}

func (r *Reader) Header() SnapshotHeader {
	return r.header
}

func (r *Reader) Path() string {
	return r.filePath
}

// Section returns the dictionary of field.
func (r *Reader) Section(field index.Field) (FieldSection, bool) {
	s, ok := r.sections[field]
	return s, ok
}

// Search returns the postings of term in field, or nil when absent.
func (r *Reader) Search(field index.Field, term string) (index.PostingList, error) {
	section, ok := r.sections[field]
	if !ok {
		return nil, nil
	}
	entries := section.Entries
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Term >= term
	})
	if i >= len(entries) || entries[i].Term != term {
		return nil, nil
	}
	entry := entries[i]
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, int64(HeaderSize)+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("%w: reading postings: %v", apperrors.ErrStorageIO, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("%w: parsing postings: %v", apperrors.ErrStorageIO, err)
	}
	return postings, nil
}

// TopTerms returns up to n terms of field with the highest document
// frequency, ties broken lexically.
func (r *Reader) TopTerms(field index.Field, n int) []DictEntry {
	section, ok := r.sections[field]
	if !ok {
		return nil
	}
	entries := append([]DictEntry(nil), section.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DocFreq > entries[j].DocFreq
	})
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Documents loads the stored products, indexed by document id.
func (r *Reader) Documents() ([]catalog.Product, error) {
	data := make([]byte, r.header.DocsSize)
	if _, err := r.file.ReadAt(data, r.header.DocsOffset); err != nil {
		return nil, fmt.Errorf("%w: reading documents: %v", apperrors.ErrStorageIO, err)
	}
	var docs []catalog.Product
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: parsing documents: %v", apperrors.ErrStorageIO, err)
	}
	return docs, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
