package lsa

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// A bundle is a single .lsab file:
//
//	header   64 bytes, little endian
//	manifest JSON (terms, documents, fingerprint, build info)
//	data     float64 blocks: global weights, sigma, doc concepts, term concepts
//	footer   16 bytes: crc32 of manifest+data, payload size
const (
	MagicBytes    uint32 = 0x4C534142 // "LSAB"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16
	BundleExt            = ".lsab"
)

// BundleHeader is the fixed-size header written at the start of a bundle.
type BundleHeader struct {
	Magic          uint32
	Version        uint32
	TermCount      uint32
	DocCount       uint32
	K              uint32
	CreatedAt      int64
	ManifestOffset int64
	ManifestSize   int64
	DataOffset     int64
	DataSize       int64
}

// Manifest is the JSON section of a bundle.
type Manifest struct {
	Terms         []string  `json:"terms"`
	Documents     []string  `json:"documents"`
	Fingerprint   string    `json:"fingerprint"`
	RequestedRank int       `json:"requested_rank"`
	K             int       `json:"k"`
	BuiltAt       time.Time `json:"built_at"`
}

// WriteBundle atomically writes m into dir. It writes to a .tmp file first
// and renames on success, returning the final path.
func WriteBundle(dir string, m *Model) (string, error) {
	if m == nil || m.K() == 0 {
		return "", fmt.Errorf("cannot write empty lsa model")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating bundle directory: %w", err)
	}
	name := fmt.Sprintf("lsa_%d%s", time.Now().UnixNano(), BundleExt)
	finalPath := filepath.Join(dir, name)
	tmpPath := finalPath + ".tmp"

	manifest, err := json.Marshal(Manifest{
		Terms:         m.Terms,
		Documents:     m.Documents,
		Fingerprint:   m.Fingerprint,
		RequestedRank: m.RequestedRank,
		K:             m.K(),
		BuiltAt:       m.BuiltAt,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	data := encodeFloats(m)

	header := BundleHeader{
		Magic:          MagicBytes,
		Version:        FormatVersion,
		TermCount:      uint32(len(m.Terms)),
		DocCount:       uint32(len(m.Documents)),
		K:              uint32(m.K()),
		CreatedAt:      time.Now().Unix(),
		ManifestOffset: int64(HeaderSize),
		ManifestSize:   int64(len(manifest)),
		DataOffset:     int64(HeaderSize + len(manifest)),
		DataSize:       int64(len(data)),
	}

	crc := crc32.NewIEEE()
	crc.Write(manifest)
	crc.Write(data)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint64(footer[8:16], uint64(len(manifest)+len(data)))

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp bundle file: %w", err)
	}
	defer f.Close()
	for _, part := range [][]byte{encodeHeader(header), manifest, data, footer} {
		if _, err := f.Write(part); err != nil {
			os.Remove(tmpPath)
			return "", fmt.Errorf("writing bundle: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing bundle file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming bundle file: %w", err)
	}
	return finalPath, nil
}

// ReadBundle loads and verifies a bundle. Any structural problem is
// reported as ErrArtifactsCorrupt.
func ReadBundle(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle %s: %w", path, err)
	}
	if len(raw) < HeaderSize+FooterSize {
		return nil, corrupt(path, "file too short (%d bytes)", len(raw))
	}
	h := decodeHeader(raw[:HeaderSize])
	if h.Magic != MagicBytes {
		return nil, corrupt(path, "bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, corrupt(path, "unsupported version %d", h.Version)
	}
	payloadEnd := h.DataOffset + h.DataSize
	if h.ManifestOffset != int64(HeaderSize) ||
		h.DataOffset != h.ManifestOffset+h.ManifestSize ||
		payloadEnd+int64(FooterSize) != int64(len(raw)) {
		return nil, corrupt(path, "inconsistent section offsets")
	}

	footer := raw[payloadEnd:]
	want := binary.LittleEndian.Uint32(footer[0:4])
	if got := crc32.ChecksumIEEE(raw[h.ManifestOffset:payloadEnd]); got != want {
		return nil, corrupt(path, "checksum mismatch: got %08x want %08x", got, want)
	}

	var manifest Manifest
	if err := json.Unmarshal(raw[h.ManifestOffset:h.DataOffset], &manifest); err != nil {
		return nil, corrupt(path, "parsing manifest: %v", err)
	}
	terms, docs, k := int(h.TermCount), int(h.DocCount), int(h.K)
	if len(manifest.Terms) != terms || len(manifest.Documents) != docs || manifest.K != k {
		return nil, corrupt(path, "manifest does not match header dimensions")
	}
	floats := terms + k + docs*k + terms*k
	if h.DataSize != int64(floats*8) {
		return nil, corrupt(path, "data section is %d bytes, want %d", h.DataSize, floats*8)
	}

	values := decodeFloats(raw[h.DataOffset:payloadEnd])
	next := func(n int) []float64 {
		out := values[:n:n]
		values = values[n:]
		return out
	}
	m := &Model{
		Terms:         manifest.Terms,
		Documents:     manifest.Documents,
		GlobalWeights: next(terms),
		Sigma:         next(k),
		Fingerprint:   manifest.Fingerprint,
		RequestedRank: manifest.RequestedRank,
		BuiltAt:       manifest.BuiltAt,
	}
	m.DocConcepts = mat.NewDense(docs, k, next(docs*k))
	m.TermConcepts = mat.NewDense(terms, k, next(terms*k))
	if err := m.prepare(); err != nil {
		return nil, corrupt(path, "%v", err)
	}
	return m, nil
}

// LatestBundle returns the newest bundle in dir by file name.
func LatestBundle(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: bundle directory %s does not exist", apperrors.ErrArtifactsNotLoaded, dir)
	}
	if err != nil {
		return "", fmt.Errorf("listing bundle directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), BundleExt) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no bundle in %s", apperrors.ErrArtifactsNotLoaded, dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

func corrupt(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", apperrors.ErrArtifactsCorrupt, path, fmt.Sprintf(format, args...))
}

func encodeHeader(h BundleHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint32(b[16:20], h.K)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.ManifestOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.ManifestSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DataOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DataSize))
	return b
}

func decodeHeader(b []byte) BundleHeader {
	return BundleHeader{
		Magic:          binary.LittleEndian.Uint32(b[0:4]),
		Version:        binary.LittleEndian.Uint32(b[4:8]),
		TermCount:      binary.LittleEndian.Uint32(b[8:12]),
		DocCount:       binary.LittleEndian.Uint32(b[12:16]),
		K:              binary.LittleEndian.Uint32(b[16:20]),
		CreatedAt:      int64(binary.LittleEndian.Uint64(b[24:32])),
		ManifestOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		ManifestSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		DataOffset:     int64(binary.LittleEndian.Uint64(b[48:56])),
		DataSize:       int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

func encodeFloats(m *Model) []byte {
	k := m.K()
	n := len(m.GlobalWeights) + k + len(m.Documents)*k + len(m.Terms)*k
	out := make([]byte, 0, n*8)
	put := func(v float64) {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
	}
	for _, v := range m.GlobalWeights {
		put(v)
	}
	for _, v := range m.Sigma {
		put(v)
	}
	for _, dense := range []*mat.Dense{m.DocConcepts, m.TermConcepts} {
		rows, cols := dense.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				put(dense.At(i, j))
			}
		}
	}
	return out
}

func decodeFloats(b []byte) []float64 {
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}
