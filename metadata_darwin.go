//go:build darwin

package filesentry

import "golang.org/x/sys/unix"

func statMtimeSec(stat *unix.Stat_t) int64  { return stat.Mtimespec.Sec }
func statMtimeNsec(stat *unix.Stat_t) int64 { return stat.Mtimespec.Nsec }
func statDev(stat *unix.Stat_t) uint64      { return uint64(stat.Dev) }
