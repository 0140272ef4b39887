package ds

import (
	"cmp"
	"fmt"
	"math/bits"
	"unsafe"
)

const (
	wyp0 = 0xa0761d6478bd642f
	wyp1 = 0xe7037ed1a0b428db
)

// wyhashString hashes a string using wyhash.
func wyhashString(s string) uint64 {
	n := len(s)
	if n == 0 {
		return 0
	}

	p := unsafe.Pointer(unsafe.StringData(s))
	var a, b uint64
	switch {
	case n > 8:
		a = *(*uint64)(p)
		b = *(*uint64)(unsafe.Add(p, n-8))
	case n >= 4:
		a = uint64(*(*uint32)(p))
		b = uint64(*(*uint32)(unsafe.Add(p, n-4)))
	default:
		a = uint64(*(*byte)(p))<<16 | uint64(*(*byte)(unsafe.Add(p, n>>1)))<<8 | uint64(*(*byte)(unsafe.Add(p, n-1)))
	}

	hi, lo := bits.Mul64(a^wyp0, b^uint64(n)^wyp1)
	return hi ^ lo
}

// mix64 is the SplitMix64 finalizer.
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// hasherFor picks a hash function for K once so buckets are chosen without a
// type switch per operation.
func hasherFor[K cmp.Ordered]() func(K) uint64 {
	var zk K
	switch any(zk).(type) {
	case string:
		return func(key K) uint64 {
			return wyhashString(*(*string)(unsafe.Pointer(&key)))
		}
	case int:
		return func(key K) uint64 {
			//nolint:gosec // G115: intentional bit reinterpretation for hashing
			return mix64(uint64(*(*int)(unsafe.Pointer(&key))))
		}
	case int64:
		return func(key K) uint64 {
			//nolint:gosec // G115: intentional bit reinterpretation for hashing
			return mix64(uint64(*(*int64)(unsafe.Pointer(&key))))
		}
	case uint64:
		return func(key K) uint64 {
			return mix64(*(*uint64)(unsafe.Pointer(&key)))
		}
	default:
		return func(key K) uint64 {
			return wyhashString(fmt.Sprint(key))
		}
	}
}
