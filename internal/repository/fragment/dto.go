package fragment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
)

// buildHashFields converts a Fragment into a flat map[string]string for HSET.
// The vector is serialized to 4 bytes per float, little-endian, as FT.SEARCH
// expects for FLOAT32 vector fields.
func buildHashFields(f domfrag.Fragment) map[string]string {
	meta := f.Meta()
	m := map[string]string{
		"filename":     meta.Filename,
		"file_type":    meta.FileType,
		"strategy":     meta.Strategy,
		"chunk_index":  strconv.Itoa(meta.ChunkIndex),
		"total_chunks": strconv.Itoa(meta.TotalChunks),
		"text":         f.Text(),
		"vector":       vectorToBytes(f.Vector()),
	}
	if len(meta.Extra) > 0 {
		if data, err := json.Marshal(meta.Extra); err == nil {
			m["extra_json"] = string(data)
		}
	}
	return m
}

// fragmentFromFields hydrates a Fragment from FT.SEARCH return fields.
// The vector is not returned by searches and stays nil.
func fragmentFromFields(id string, fields map[string]string) (domfrag.Fragment, error) {
	chunkIndex, err := strconv.Atoi(fields["chunk_index"])
	if err != nil {
		return domfrag.Fragment{}, fmt.Errorf("invalid chunk_index: %w", err)
	}

	totalChunks := 0
	if s := fields["total_chunks"]; s != "" {
		if totalChunks, err = strconv.Atoi(s); err != nil {
			return domfrag.Fragment{}, fmt.Errorf("invalid total_chunks: %w", err)
		}
	}

	var extra map[string]string
	if s := fields["extra_json"]; s != "" {
		if err := json.Unmarshal([]byte(s), &extra); err != nil {
			return domfrag.Fragment{}, fmt.Errorf("invalid extra_json: %w", err)
		}
	}

	meta := domfrag.Metadata{
		Filename:    fields["filename"],
		FileType:    fields["file_type"],
		Strategy:    fields["strategy"],
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Extra:       extra,
	}
	return domfrag.Reconstruct(id, fields["text"], nil, meta), nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
