package afpacket

import (
	"fmt"
)

const (
	tpacketAlignment = 16
	// Approximate TPACKET3 header length.
	tpacketHdrLen = 52
	maxBlockSize  = 4 * 1024 * 1024
)

// ringLayout derives frame size, block size and block count for a
// PACKET_MMAP ring of roughly bufferMB megabytes. The kernel requires frames
// aligned to TPACKET_ALIGNMENT, blocks that are a multiple of the page size,
// and blocks holding a whole number of frames.
func ringLayout(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Page-sized frames make every page multiple a valid block.
		frameSize = alignUp(frameSize, pageSize)
		blockSize = frameSize
	}

	numBlocks = bufferMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
