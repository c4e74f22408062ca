// Package tables persists surrogate sets. The packed format is a msgpack
// encoded core.SurrogateSet compressed with zstd; plain JSON is accepted for
// hand-written or exported sets.
package tables

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/aerostab/core"
)

// PackedExt is the file extension of the packed format.
const PackedExt = ".msgpack.zst"

// ErrEmptySet is returned when a decoded set has no channel tables.
var ErrEmptySet = errors.New("surrogate set has no channel tables")

// Save writes set to w in the packed format.
func Save(w io.Writer, set *core.SurrogateSet) error {
	if set == nil {
		return ErrEmptySet
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := msgpack.NewEncoder(zw).Encode(set); err != nil {
		return fmt.Errorf("failed to encode surrogate set: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// Load reads a packed set from r. The channel tables are built and checked;
// control-family coverage is checked later, against the active families, by
// core.NewAggregator.
func Load(r io.Reader) (*core.SurrogateSet, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var set core.SurrogateSet
	if err := msgpack.NewDecoder(zr).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode surrogate set: %w", err)
	}
	return checked(&set)
}

// DecodeJSON reads a set from its JSON form.
func DecodeJSON(r io.Reader) (*core.SurrogateSet, error) {
	var set core.SurrogateSet
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode surrogate set JSON: %w", err)
	}
	return checked(&set)
}

func checked(set *core.SurrogateSet) (*core.SurrogateSet, error) {
	if len(set.Channels) == 0 {
		return nil, ErrEmptySet
	}
	if err := set.Build(nil); err != nil {
		return nil, err
	}
	return set, nil
}

// LoadFile picks the decoder from the file extension: ".json" is JSON,
// anything else is the packed format.
func LoadFile(path string) (*core.SurrogateSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var set *core.SurrogateSet
	if strings.EqualFold(filepath.Ext(path), ".json") {
		set, err = DecodeJSON(f)
	} else {
		set, err = Load(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// SaveFile writes set to path in the packed format through a temporary file
// in the same directory.
func SaveFile(path string, set *core.SurrogateSet) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tables-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = Save(tmp, set); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
