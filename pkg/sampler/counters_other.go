//go:build !linux

package sampler

import "context"

func collectCPU(ctx context.Context, pid int, threads []ThreadInfo, userOnly bool) (map[int64]int64, error) {
	return nil, ErrUnsupported
}
