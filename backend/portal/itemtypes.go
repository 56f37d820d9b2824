package portal

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sharepkg/sharepkg/fs/fserrors"
)

// item types of the packages which can be shared, by upper case
// extension
var (
	itemTypesMu sync.RWMutex
	itemTypes   = map[string]string{
		".LPK":  "Layer Package",
		".LPKX": "Layer Package",
		".MPK":  "Map Package",
		".MPKX": "Map Package",
		".BPK":  "Mobile Basemap Package",
		".TPK":  "Tile Package",
		".TPKX": "Compact Tile Package",
		".VTPK": "Vector Tile Package",
		".GPK":  "Geoprocessing Package",
		".GPKX": "Geoprocessing Package",
		".RPK":  "Rule Package",
		".GCPK": "Locator Package",
		".PPKX": "Project Package",
		".APTX": "Project Template",
		".SD":   "Service Definition",
		".MMPK": "Mobile Map Package",
		".SPK":  "Scene Package",
		".SLPK": "Scene Layer Package",
	}
)

// normExt upper cases ext and makes sure it starts with a dot
func normExt(ext string) string {
	ext = strings.ToUpper(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// RegisterItemType adds or replaces the item type for an extension
func RegisterItemType(ext, itemType string) {
	itemTypesMu.Lock()
	defer itemTypesMu.Unlock()
	itemTypes[normExt(ext)] = itemType
}

// ItemTypeForExt returns the item type for the extension
func ItemTypeForExt(ext string) (itemType string, ok bool) {
	itemTypesMu.RLock()
	defer itemTypesMu.RUnlock()
	itemType, ok = itemTypes[normExt(ext)]
	return itemType, ok
}

// ResolveItemType returns override if set, otherwise the item type
// for the extension of filePath.  An unknown extension is an
// UploadError.
func ResolveItemType(filePath, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	ext := filepath.Ext(filePath)
	if itemType, ok := ItemTypeForExt(ext); ok {
		return itemType, nil
	}
	if ext == "" {
		return "", fserrors.Newf(fserrors.UploadError, "can't work out the package type of %q: no extension", filepath.Base(filePath))
	}
	return "", fserrors.Newf(fserrors.UploadError, "unknown package type extension: %s", ext)
}

// ItemTypeExtensions returns the known extensions in sorted order
func ItemTypeExtensions() []string {
	itemTypesMu.RLock()
	defer itemTypesMu.RUnlock()
	exts := make([]string, 0, len(itemTypes))
	for ext := range itemTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
