package library

import (
	"net/url"
	"path"
	"strings"
)

// RealName returns the part of a track's file stem after the first
// underscore, so "03_Rain.mp3" becomes "Rain". Tracks without a numbered
// prefix have no real name.
func RealName(id string) (string, bool) {
	name := baseName(id)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	_, real, ok := strings.Cut(name, "_")
	return real, ok
}

// Title returns the display title of a track: its real name, else the file stem
func Title(id string) string {
	if real, ok := RealName(id); ok {
		return real
	}
	name := baseName(id)
	return strings.TrimSuffix(name, path.Ext(name))
}

func baseName(id string) string {
	if u, err := url.Parse(id); err == nil && u.Scheme != "" {
		id = u.Path
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return id
}

// SpreadDuplicates reorders items in place so that items sharing a key sit
// at least three quarters of their fair share of the list apart. Items
// without a key never move on their own account.
func SpreadDuplicates[T any](items []T, key func(T) (string, bool)) {
	counts := make(map[string]int)
	for _, item := range items {
		if k, ok := key(item); ok {
			counts[k]++
		}
	}
	for k, c := range counts {
		if c < 2 {
			delete(counts, k)
		}
	}
	if len(counts) == 0 {
		return
	}

	length := len(items)
	keyOf := func(i int) string {
		k, _ := key(items[i])
		return k
	}

	var lastSwaps []swapPair
	// every pass either terminates or moves an item; cap the passes so a
	// pathological list cannot spin
	for pass := 0; pass < length*length+1; pass++ {
		if !spreadPass(items, counts, keyOf, length, &lastSwaps) {
			return
		}
	}
}

type swapPair struct{ i, j int }

// spreadPass performs at most one swap and reports whether it did
func spreadPass[T any](items []T, counts map[string]int, keyOf func(int) string, length int, lastSwaps *[]swapPair) bool {
	last := make(map[string]int)
	for i := range items {
		k := keyOf(i)
		count, dup := counts[k]
		if k == "" || !dup {
			continue
		}
		minGap := length * 3 / (count * 4)
		if prev, seen := last[k]; seen && i-prev < minGap {
			for j := 0; j < length; j++ {
				if absDiff(j, prev) >= minGap && keyOf(j) != k {
					items[i], items[j] = items[j], items[i]
					s := swapPair{i, j}
					if containsSwap(*lastSwaps, s) {
						*lastSwaps = (*lastSwaps)[:0]
						rotateLeft(items)
					}
					*lastSwaps = append(*lastSwaps, s)
					return true
				}
			}
		}
		last[k] = i
	}
	return false
}

func containsSwap(swaps []swapPair, s swapPair) bool {
	for _, x := range swaps {
		if x == s {
			return true
		}
	}
	return false
}

func rotateLeft[T any](items []T) {
	if len(items) < 2 {
		return
	}
	first := items[0]
	copy(items, items[1:])
	items[len(items)-1] = first
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
