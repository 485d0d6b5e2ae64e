package container

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/you-humble/camstage/internal/domain"
)

const (
	MediaType = "application/x-spk"
	Extension = ".spk"

	headerSize   = 8
	checksumSize = sha256.Size
)

var (
	spkMagic = []byte("1spk")
	zipMagic = []byte("PK\x03\x04")
)

// SPKPacker wraps an apk into the envelope the camera installer expects:
// magic, big-endian payload length, payload, sha256 of the payload.
type SPKPacker struct {
	sem chan struct{}
}

func NewSPKPacker(maxParallel int) *SPKPacker {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &SPKPacker{sem: make(chan struct{}, maxParallel)}
}

func (p *SPKPacker) Convert(ctx context.Context, pkg []byte) (domain.Container, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return domain.Container{}, fmt.Errorf("packer busy or canceled: %w", ctx.Err())
	}

	if !bytes.HasPrefix(pkg, zipMagic) {
		return domain.Container{}, domain.ErrInvalidPackage
	}
	if uint64(len(pkg)) > uint64(^uint32(0)) {
		return domain.Container{}, fmt.Errorf("package too large: %d bytes", len(pkg))
	}

	out := make([]byte, 0, headerSize+len(pkg)+checksumSize)
	out = append(out, spkMagic...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(pkg)))
	out = append(out, pkg...)
	sum := sha256.Sum256(pkg)
	out = append(out, sum[:]...)

	return domain.Container{Data: out, MediaType: MediaType, Extension: Extension}, nil
}

// Unpack verifies an envelope and returns the wrapped package.
func Unpack(data []byte) ([]byte, error) {
	if len(data) < headerSize+checksumSize || !bytes.HasPrefix(data, spkMagic) {
		return nil, fmt.Errorf("not an spk envelope")
	}

	n := binary.BigEndian.Uint32(data[len(spkMagic):headerSize])
	if uint64(len(data)) != uint64(headerSize)+uint64(n)+checksumSize {
		return nil, fmt.Errorf("spk length mismatch")
	}

	payload := data[headerSize : headerSize+int(n)]
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], data[headerSize+int(n):]) {
		return nil, fmt.Errorf("spk checksum mismatch")
	}

	return payload, nil
}
