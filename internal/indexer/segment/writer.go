package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

// MagicBytes identifies a .spdx generation snapshot.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 8
	FileExt              = ".spdx"
)

// SnapshotHeader is the 64-byte header at the start of every snapshot.
// Postings start right after the header and end at DictOffset.
type SnapshotHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	GenerationID uint64
	DictOffset   int64
	DictSize     int64
	DocsOffset   int64
	DocsSize     int64
}

func (h SnapshotHeader) marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], h.GenerationID)
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DocsSize))
	return b
}

func unmarshalHeader(b []byte) SnapshotHeader {
	return SnapshotHeader{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		GenerationID: binary.LittleEndian.Uint64(b[24:32]),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[32:40])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[40:48])),
		DocsOffset:   int64(binary.LittleEndian.Uint64(b[48:56])),
		DocsSize:     int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// DictEntry maps a term to its postings offset (relative to the end of the
// header), length, and document frequency.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// FieldSection is the dictionary of one field.
type FieldSection struct {
	Field   index.Field `json:"field"`
	Tokens  int64       `json:"tokens"`
	Entries []DictEntry `json:"entries"`
}

// Writer serialises generations into snapshot files in one directory.
type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// FileName returns the snapshot file name of a generation.
func FileName(generationID uint64) string {
	return fmt.Sprintf("gen_%08d%s", generationID, FileExt)
}

// Write atomically creates the snapshot of g. It writes to a .tmp file
// first and renames on success, so a reader never sees a partial file.
// Failures wrap ErrStorageIO.
func (w *Writer) Write(g *index.Generation) (string, error) {
	path, err := w.write(g)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrStorageIO, err)
	}
	return path, nil
}

func (w *Writer) write(g *index.Generation) (string, error) {
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	finalPath := filepath.Join(w.dataDir, FileName(g.ID()))
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	header := SnapshotHeader{
		Magic:        MagicBytes,
		Version:      FormatVersion,
		DocCount:     uint32(g.DocCount()),
		CreatedAt:    g.CreatedAt().Unix(),
		GenerationID: g.ID(),
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("reserving header: %w", err)
	}

	crc := crc32.NewIEEE()
	bw := bufio.NewWriterSize(f, 256<<10)
	out := &countingWriter{w: io.MultiWriter(bw, crc)}

	sections := make([]FieldSection, 0, len(index.Fields))
	for _, field := range index.Fields {
		dict := g.Dictionary(field)
		if dict == nil {
			continue
		}
		section := FieldSection{Field: field, Tokens: dict.TokenCount()}
		for _, entry := range dict.Entries() {
			data, err := json.Marshal(entry.Postings)
			if err != nil {
				return "", fmt.Errorf("marshaling postings for %s:%q: %w", field, entry.Term, err)
			}
			offset := out.n
			if _, err := out.Write(data); err != nil {
				return "", fmt.Errorf("writing postings for %s:%q: %w", field, entry.Term, err)
			}
			section.Entries = append(section.Entries, DictEntry{
				Term:       entry.Term,
				PostOffset: offset,
				PostLen:    len(data),
				DocFreq:    len(entry.Postings),
			})
		}
		header.TermCount += uint32(len(section.Entries))
		sections = append(sections, section)
	}

	header.DictOffset = int64(HeaderSize) + out.n
	if err := writeJSON(out, sections); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	header.DictSize = int64(HeaderSize) + out.n - header.DictOffset

	docs := make([]catalog.Product, 0, g.DocCount())
	for id := 0; id < g.DocCount(); id++ {
		p, _ := g.Document(uint32(id))
		docs = append(docs, p)
	}
	header.DocsOffset = int64(HeaderSize) + out.n
	if err := writeJSON(out, docs); err != nil {
		return "", fmt.Errorf("writing documents: %w", err)
	}
	header.DocsSize = int64(HeaderSize) + out.n - header.DocsOffset

	if err := writeFooter(bw, crc); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flushing snapshot: %w", err)
	}
	if _, err := f.WriteAt(header.marshal(), 0); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}
	committed = true
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return finalPath, nil
}

// writeFooter appends the CRC32 of everything between the header and the
// footer, followed by the magic bytes.
func writeFooter(w io.Writer, crc hash.Hash32) error {
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Prune removes all but the newest keep snapshots in dir.
func Prune(dir string, keep int) (int, error) {
	paths, err := List(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(paths)-removed > keep {
		if err := os.Remove(paths[removed]); err != nil {
			return removed, fmt.Errorf("%w: removing snapshot: %v", apperrors.ErrStorageIO, err)
		}
		removed++
	}
	return removed, nil
}

// List returns the snapshot files in dir, oldest generation first.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "gen_*"+FileExt))
	if err != nil {
		return nil, err
	}
	// Zero-padded ids sort lexically in generation order.
	return matches, nil
}
