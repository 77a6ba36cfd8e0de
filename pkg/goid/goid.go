package goid

import (
	"runtime"
	"strconv"
)

// prefix 栈信息类似: "goroutine 123 [running]:\n"
const prefix = len("goroutine ")

// GetGID 获取当前 goroutine 的 ID，仅用于日志关联
func GetGID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	var id uint64
	for i := prefix; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

// String 十进制形式，写入日志字段
func String() string {
	return strconv.FormatUint(GetGID(), 10)
}
