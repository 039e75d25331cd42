package pipeline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// queryFingerprint canonically serializes the narrowing tags of query plus
// ownerStr, used to bind a PreQuery-issued session to the exact Query call
// that must later present its challenge (§3.5's "caller fingerprint").
func queryFingerprint(query tag.Asset, ownerStr string) string {
	fields := map[string]string{"owner": ownerStr}
	if v, ok := query[tag.Alias]; ok {
		fields["alias"] = string(v.Bytes)
	}
	if v, ok := query[tag.GroupId]; ok {
		fields["group_id"] = string(v.Bytes)
	}
	if v, ok := query[tag.Accessibility]; ok {
		fields["accessibility"] = strconv.FormatUint(uint64(v.Num), 10)
	}
	labelTags := append(append(append([]tag.Tag{}, tag.CriticalLabels...), tag.NormalLabels...), tag.LocalLabels...)
	for _, t := range labelTags {
		if v, ok := query[t]; ok {
			fields[t.String()] = string(v.Bytes)
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte(';')
	}
	return b.String()
}
