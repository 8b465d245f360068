package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
)

const readbackPollInterval = time.Millisecond

// readUint32 maps the first four bytes of a MapRead buffer. The device is
// polled until the map callback fires or ctx is done; the buffer is left
// unmapped on every path that mapped it.
func readUint32(ctx context.Context, device *wgpu.Device, buf *wgpu.Buffer) (uint32, error) {
	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	err := buf.MapAsync(wgpu.MapModeRead, 0, 4, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})
	if err != nil {
		return 0, fmt.Errorf("map readback buffer: %w", err)
	}

	ticker := time.NewTicker(readbackPollInterval)
	defer ticker.Stop()
	for {
		device.Poll(false, nil)
		select {
		case status := <-done:
			if status != wgpu.BufferMapAsyncStatusSuccess {
				return 0, fmt.Errorf("map readback buffer: status %v", status)
			}
			data := buf.GetMappedRange(0, 4)
			v := binary.LittleEndian.Uint32(data)
			buf.Unmap()
			return v, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
