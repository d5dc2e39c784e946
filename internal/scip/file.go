package scip

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"macrodex/internal/errors"
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Write serializes index to path, zstd-compressed when compress is set. The
// file is replaced atomically.
func Write(path string, index *scippb.Index, compress bool) error {
	data, err := proto.Marshal(index)
	if err != nil {
		return fmt.Errorf("marshal SCIP index: %w", err)
	}
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write SCIP index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write SCIP index: %w", err)
	}
	return nil
}

// Load reads an index written by Write. Compression is detected from the
// content.
func Load(path string) (*scippb.Index, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.IndexMissing, fmt.Sprintf("SCIP index not found at %s", path), err)
	}
	if err != nil {
		return nil, errors.New(errors.InternalError, fmt.Sprintf("Failed to read SCIP index from %s", path), err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, errors.New(errors.InternalError, fmt.Sprintf("Failed to decompress SCIP index from %s", path), err)
		}
	}

	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, errors.New(errors.InternalError, fmt.Sprintf("Failed to parse SCIP index from %s", path), err,
			errors.FixAction{Command: "macrodex collect --scip", Description: "Regenerate the index"})
	}
	return &index, nil
}
