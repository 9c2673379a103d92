package eeg

import (
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Codec error sentinels. Callers distinguish fatal import/persist failures
// from recoverable stage failures via errors.Is.
var (
	// ErrUnsupportedFormat indicates a file extension the codec cannot read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrIO indicates a missing, empty, or unreadable input file.
	ErrIO = errors.New("input file unreadable")
	// ErrWrite indicates a failure persisting the output file.
	ErrWrite = errors.New("write failed")
)

// Supported container formats.
const (
	FormatCSV = "csv"
	FormatRaw = "raw"
)

// rateDirective is the optional first line of a CSV recording, e.g.
// "# rate=256". Without it the CSV sample rate defaults to defaultCSVRate.
const rateDirective = "# rate="

const defaultCSVRate = 256.0

// rawSidecar is the JSON metadata written next to a .raw payload.
type rawSidecar struct {
	Labels     []string `json:"labels"`
	SampleRate float64  `json:"sample_rate"`
	Samples    int      `json:"samples"`
	Events     []Event  `json:"events,omitempty"`
}

// Import reads a recording from disk. The format is chosen by extension:
// .csv for the text container, .raw for float32 binary with a JSON sidecar.
// Missing or zero-byte files fail with ErrIO before any parsing; unknown
// extensions fail with ErrUnsupportedFormat.
func Import(path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrIO, path)
	}

	var ds *Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		ds, err = importCSV(path)
	case ".raw":
		ds, err = importRaw(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	return ds, nil
}

// Persist writes the dataset to path in the named format (FormatCSV or
// FormatRaw). Failures wrap ErrWrite and are fatal for the file being
// processed.
func Persist(ds *Dataset, path, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	switch format {
	case FormatCSV:
		return persistCSV(ds, path)
	case FormatRaw:
		return persistRaw(ds, path)
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrWrite, format)
	}
}

func importCSV(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	text := string(data)
	rate := defaultCSVRate
	if strings.HasPrefix(text, rateDirective) {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			nl = len(text)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text[len(rateDirective):nl]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad rate directive: %v", ErrIO, err)
		}
		rate = v
		if nl < len(text) {
			text = text[nl+1:]
		} else {
			text = ""
		}
	}

	r := csv.NewReader(strings.NewReader(text))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: need a header row and at least one sample row", ErrIO)
	}

	labels := make([]string, len(records[0]))
	for i, l := range records[0] {
		labels[i] = strings.TrimSpace(l)
	}

	nChan := len(labels)
	nSamp := len(records) - 1
	buf := make([][]float64, nChan)
	for c := range buf {
		buf[c] = make([]float64, nSamp)
	}
	for s, row := range records[1:] {
		if len(row) != nChan {
			return nil, fmt.Errorf("%w: row %d has %d fields, expected %d", ErrIO, s+2, len(row), nChan)
		}
		for c, field := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %v", ErrIO, s+2, c+1, err)
			}
			buf[c][s] = v
		}
	}

	return &Dataset{Labels: labels, SampleRate: rate, Data: buf}, nil
}

func persistCSV(ds *Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s%g\n", rateDirective, ds.SampleRate); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(ds.Labels); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	row := make([]string, ds.Channels())
	for s := 0; s < ds.Samples(); s++ {
		for c := range ds.Data {
			row[c] = strconv.FormatFloat(ds.Data[c][s], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func importRaw(path string) (*Dataset, error) {
	meta, err := os.ReadFile(path + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: sidecar: %v", ErrIO, err)
	}
	var sc rawSidecar
	if err := json.Unmarshal(meta, &sc); err != nil {
		return nil, fmt.Errorf("%w: sidecar: %v", ErrIO, err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	want := len(sc.Labels) * sc.Samples * 4
	if len(payload) != want {
		return nil, fmt.Errorf("%w: payload is %d bytes, sidecar implies %d", ErrIO, len(payload), want)
	}

	buf := make([][]float64, len(sc.Labels))
	off := 0
	for c := range buf {
		buf[c] = make([]float64, sc.Samples)
		for s := 0; s < sc.Samples; s++ {
			bits := binary.LittleEndian.Uint32(payload[off:])
			buf[c][s] = float64(math.Float32frombits(bits))
			off += 4
		}
	}

	return &Dataset{Labels: sc.Labels, SampleRate: sc.SampleRate, Data: buf, Events: sc.Events}, nil
}

func persistRaw(ds *Dataset, path string) error {
	sc := rawSidecar{
		Labels:     ds.Labels,
		SampleRate: ds.SampleRate,
		Samples:    ds.Samples(),
		Events:     ds.Events,
	}
	meta, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: sidecar: %v", ErrWrite, err)
	}
	if err := os.WriteFile(path+".json", meta, 0o644); err != nil {
		return fmt.Errorf("%w: sidecar: %v", ErrWrite, err)
	}

	payload := make([]byte, ds.Channels()*ds.Samples()*4)
	off := 0
	for c := range ds.Data {
		for _, v := range ds.Data[c] {
			binary.LittleEndian.PutUint32(payload[off:], math.Float32bits(float32(v)))
			off += 4
		}
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}
