package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	cellTypeLabels  = make(map[string]CellType)
	canonicalLabels = make(map[CellType]string)
	registryMu      sync.RWMutex
)

func init() {
	registerCellType(CellUInt, "uint")
	registerCellType(CellInt, "int")
	registerCellType(CellLong, "long")
	registerCellType(CellString, "string")
	registerCellType(CellBool, "bool")
	registerCellType(CellLang, "lang")
	registerCellType(CellFloat, "float")
	registerCellType(CellDouble, "double")
	registerCellType(CellVector2Int, "vector2_int", "vector[int,int]")
	registerCellType(CellVector3Int, "vector3_int")
	registerCellType(CellVector2UInt, "vector2_uint")
	registerCellType(CellVector3UInt, "vector3_uint")
	registerCellType(CellVector2Float, "vector[float,float]")
	registerCellType(CellVector3Float, "vector[float,float,float]")
	registerCellType(CellVector2String, "vector[string,string]")
	registerCellType(CellArrayInt, "array_int")
	registerCellType(CellArrayUInt, "array_uint")
	registerCellType(CellVector2ArrayInt, "vector2_array_int")
	registerCellType(CellVector3ArrayInt, "vector3_array_int")
	registerCellType(CellDictionaryStringInt, "dictionary_string_int")
	registerCellType(CellDictionaryStringFloat, "dictionary_string_float")
}

// registerCellType adds the labels that resolve to t.
// The first label becomes the canonical one.
// Panics if a label is already registered, since two kinds sharing a label
// would make resolution ambiguous.
func registerCellType(t CellType, labels ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	for _, label := range labels {
		key := normalizeLabel(label)
		if prev, exists := cellTypeLabels[key]; exists {
			panic(fmt.Sprintf("cell type label %q already registered for %d", label, prev))
		}
		cellTypeLabels[key] = t
	}
	if _, ok := canonicalLabels[t]; !ok && len(labels) > 0 {
		canonicalLabels[t] = labels[0]
	}
}

// ParseCellType resolves a type label from the second header row.
// Matching ignores case and surrounding whitespace.
func ParseCellType(label string) (CellType, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if t, ok := cellTypeLabels[normalizeLabel(label)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCellType, label)
}

// CellTypeLabels returns every registered label, sorted.
func CellTypeLabels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(cellTypeLabels))
	for label := range cellTypeLabels {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
