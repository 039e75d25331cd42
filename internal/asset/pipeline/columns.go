package pipeline

import "github.com/assetsvc/assetsvc/internal/asset/tag"

// labelColumn maps a label Tag onto its stored column name, used to
// translate ReturnOrderedBy into an ORDER BY clause.
func labelColumn(t tag.Tag) (string, bool) {
	switch t {
	case tag.DataLabelCritical1:
		return "critical1", true
	case tag.DataLabelCritical2:
		return "critical2", true
	case tag.DataLabelCritical3:
		return "critical3", true
	case tag.DataLabelCritical4:
		return "critical4", true
	case tag.DataLabelNormal1:
		return "normal1", true
	case tag.DataLabelNormal2:
		return "normal2", true
	case tag.DataLabelNormal3:
		return "normal3", true
	case tag.DataLabelNormal4:
		return "normal4", true
	case tag.DataLabelNormalLocal1:
		return "normal_local1", true
	case tag.DataLabelNormalLocal2:
		return "normal_local2", true
	case tag.DataLabelNormalLocal3:
		return "normal_local3", true
	case tag.DataLabelNormalLocal4:
		return "normal_local4", true
	default:
		return "", false
	}
}
