package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gekko3d/volumert/rt/volume"
)

// Source produces one volume per Fetch. Fetch may block on I/O and must
// honour ctx.
type Source interface {
	Fetch(ctx context.Context) (*volume.VoxelVolume, error)
	String() string
}

// Decoder turns an encoded volume into samples.
type Decoder interface {
	Decode(r io.Reader) (*volume.VoxelVolume, error)
}

// DecoderFor picks a decoder from a file name: .nii and .nii.gz are NIfTI-1;
// anything else needs an explicit decoder.
func DecoderFor(name string) (Decoder, error) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz") {
		return NIfTI{}, nil
	}
	return nil, fmt.Errorf("source: no decoder for %q", name)
}

// Static returns an already decoded volume.
type Static struct {
	Name   string
	Volume *volume.VoxelVolume
}

func (s Static) Fetch(ctx context.Context) (*volume.VoxelVolume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Volume == nil {
		return nil, fmt.Errorf("source %s: no volume", s)
	}
	return s.Volume, nil
}

func (s Static) String() string { return "static:" + s.Name }

// Memory decodes an in-memory blob.
type Memory struct {
	Name    string
	Data    []byte
	Decoder Decoder
}

func (m Memory) Fetch(ctx context.Context) (*volume.VoxelVolume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dec, err := pickDecoder(m.Decoder, m.Name)
	if err != nil {
		return nil, err
	}
	return dec.Decode(bytes.NewReader(m.Data))
}

func (m Memory) String() string { return "memory:" + m.Name }

// File reads and decodes a local file.
type File struct {
	Path    string
	Decoder Decoder
}

func (f File) Fetch(ctx context.Context) (*volume.VoxelVolume, error) {
	dec, err := pickDecoder(f.Decoder, f.Path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return dec.Decode(ctxReader{ctx: ctx, r: fh})
}

func (f File) String() string { return "file:" + f.Path }

// HTTP fetches a volume over the network.
type HTTP struct {
	URL     string
	Client  *http.Client
	Decoder Decoder
}

func (h HTTP) Fetch(ctx context.Context) (*volume.VoxelVolume, error) {
	dec, err := pickDecoder(h.Decoder, h.URL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", h.URL, resp.Status)
	}
	return dec.Decode(resp.Body)
}

func (h HTTP) String() string { return h.URL }

// Open maps a locator to a source: http(s) URLs fetch over the network,
// anything else is a local path.
func Open(locator string, dec Decoder) Source {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return HTTP{URL: locator, Decoder: dec}
	}
	return File{Path: locator, Decoder: dec}
}

func pickDecoder(dec Decoder, name string) (Decoder, error) {
	if dec != nil {
		return dec, nil
	}
	return DecoderFor(name)
}

// ctxReader stops a long decode once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
