//go:build linux

package sampler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// USER_HZ as exposed in /proc, fixed at 100 on every Linux ABI.
const clockTicksPerSecond = 100

const nsPerTick = int64(1e9 / clockTicksPerSecond)

var procRoot = "/proc"

func collectCPU(ctx context.Context, pid int, threads []ThreadInfo, userOnly bool) (map[int64]int64, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	out := make(map[int64]int64, len(threads))
	for _, t := range threads {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if t.NativeID <= 0 {
			continue
		}
		utime, stime, err := readTaskStat(pid, t.NativeID)
		if err != nil {
			// thread exited since the dump
			continue
		}
		if userOnly {
			out[t.ID] = utime * nsPerTick
		} else {
			out[t.ID] = (utime + stime) * nsPerTick
		}
	}
	return out, nil
}

// readTaskStat returns utime and stime in clock ticks from
// /proc/<pid>/task/<tid>/stat.
func readTaskStat(pid int, tid int64) (int64, int64, error) {
	path := fmt.Sprintf("%s/%d/task/%d/stat", procRoot, pid, tid)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	return parseTaskStat(string(data))
}

func parseTaskStat(line string) (int64, int64, error) {
	// comm may contain spaces and parentheses; fields resume after the last ')'
	end := strings.LastIndexByte(line, ')')
	if end < 0 {
		return 0, 0, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(line[end+1:])
	// fields[0] is field 3 (state); utime and stime are fields 14 and 15
	if len(fields) < 13 {
		return 0, 0, fmt.Errorf("stat line has %d fields", len(fields))
	}
	utime, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad utime: %w", err)
	}
	stime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad stime: %w", err)
	}
	return utime, stime, nil
}
