//go:build linux

package filesentry

import "golang.org/x/sys/unix"

func statMtimeSec(stat *unix.Stat_t) int64  { return stat.Mtim.Sec }
func statMtimeNsec(stat *unix.Stat_t) int64 { return stat.Mtim.Nsec }
func statDev(stat *unix.Stat_t) uint64      { return stat.Dev }
