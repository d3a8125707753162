package cache

import "strings"

// slotCount is the number of hash slots in a Redis cluster.
const slotCount = 16384

// crc16tab is the CRC16-XMODEM table (polynomial 0x1021).
var crc16tab = func() [256]uint16 {
	var tab [256]uint16
	for i := range tab {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		tab[i] = crc
	}
	return tab
}()

func crc16(s string) uint16 {
	var crc uint16
	for i := 0; i < len(s); i++ {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^s[i]]
	}
	return crc
}

// hashTag returns the part of key that decides its slot: the content of the
// first non-empty {...} section, or the whole key.
func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

// Slot returns the cluster hash slot of key.
func Slot(key string) int {
	return int(crc16(hashTag(key))) % slotCount
}

// slotGroup is the keys of one slot with their positions in the caller's
// input.
type slotGroup struct {
	slot    int
	keys    []string
	indexes []int
}

// partitionBySlot groups keys by slot. Groups appear in order of first
// occurrence and keys keep their relative order inside a group.
func partitionBySlot(keys []string) []slotGroup {
	bySlot := make(map[int]int)
	var groups []slotGroup
	for i, k := range keys {
		slot := Slot(k)
		gi, ok := bySlot[slot]
		if !ok {
			gi = len(groups)
			bySlot[slot] = gi
			groups = append(groups, slotGroup{slot: slot})
		}
		groups[gi].keys = append(groups[gi].keys, k)
		groups[gi].indexes = append(groups[gi].indexes, i)
	}
	return groups
}
